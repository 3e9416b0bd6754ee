package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Event model related methods.
	CreateEvent(ctx context.Context, create *Event) (*Event, error)
	ListEvents(ctx context.Context, find *FindEvent) ([]*Event, error)
	UpdateEvent(ctx context.Context, update *UpdateEvent) error
	DeleteEvent(ctx context.Context, delete *DeleteEvent) (int64, error)

	// Routing feedback related methods.
	CreateRoutingCorrection(ctx context.Context, create *RoutingCorrection) (*RoutingCorrection, error)
	ListRoutingCorrections(ctx context.Context, find *FindRoutingCorrection) ([]*RoutingCorrection, error)
	CreateRoutingSuccess(ctx context.Context, create *RoutingSuccess) (*RoutingSuccess, error)
	ListRoutingSuccesses(ctx context.Context, find *FindRoutingSuccess) ([]*RoutingSuccess, error)
}
