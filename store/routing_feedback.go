package store

import "context"

// RoutingCorrection is a persisted user correction of a routing decision.
type RoutingCorrection struct {
	ID            int32
	Query         string
	WrongAction   string
	CorrectAction string
	CreatedTs     int64
}

// FindRoutingCorrection is the find condition for routing corrections.
// Limit keeps the most recent rows; results are always oldest first.
type FindRoutingCorrection struct {
	Limit *int
}

// RoutingSuccess is a persisted successfully executed routing decision.
type RoutingSuccess struct {
	ID             int32
	Query          string
	Action         string
	Classification string
	CreatedTs      int64
}

// FindRoutingSuccess is the find condition for routing successes.
type FindRoutingSuccess struct {
	Limit *int
}

func (s *Store) CreateRoutingCorrection(ctx context.Context, create *RoutingCorrection) (*RoutingCorrection, error) {
	return s.driver.CreateRoutingCorrection(ctx, create)
}

func (s *Store) ListRoutingCorrections(ctx context.Context, find *FindRoutingCorrection) ([]*RoutingCorrection, error) {
	return s.driver.ListRoutingCorrections(ctx, find)
}

func (s *Store) CreateRoutingSuccess(ctx context.Context, create *RoutingSuccess) (*RoutingSuccess, error) {
	return s.driver.CreateRoutingSuccess(ctx, create)
}

func (s *Store) ListRoutingSuccesses(ctx context.Context, find *FindRoutingSuccess) ([]*RoutingSuccess, error) {
	return s.driver.ListRoutingSuccesses(ctx, find)
}
