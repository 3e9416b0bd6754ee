package memory

import (
	"context"
	"time"

	"github.com/hrygo/calroute/store"
)

// StorePersister keeps feedback records in the calroute store.
type StorePersister struct {
	store *store.Store
}

// NewStorePersister creates a Persister backed by s.
func NewStorePersister(s *store.Store) *StorePersister {
	return &StorePersister{store: s}
}

var _ Persister = (*StorePersister)(nil)

func (p *StorePersister) LoadCorrections(ctx context.Context, limit int) ([]CorrectionRecord, error) {
	rows, err := p.store.ListRoutingCorrections(ctx, &store.FindRoutingCorrection{Limit: &limit})
	if err != nil {
		return nil, err
	}
	out := make([]CorrectionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, CorrectionRecord{
			Query:         r.Query,
			WrongAction:   r.WrongAction,
			CorrectAction: r.CorrectAction,
			Timestamp:     time.Unix(r.CreatedTs, 0),
		})
	}
	return out, nil
}

func (p *StorePersister) LoadSuccesses(ctx context.Context, limit int) ([]SuccessRecord, error) {
	rows, err := p.store.ListRoutingSuccesses(ctx, &store.FindRoutingSuccess{Limit: &limit})
	if err != nil {
		return nil, err
	}
	out := make([]SuccessRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, SuccessRecord{
			Query:          r.Query,
			Action:         r.Action,
			Classification: r.Classification,
			Timestamp:      time.Unix(r.CreatedTs, 0),
		})
	}
	return out, nil
}

func (p *StorePersister) SaveCorrection(ctx context.Context, rec CorrectionRecord) error {
	_, err := p.store.CreateRoutingCorrection(ctx, &store.RoutingCorrection{
		Query:         rec.Query,
		WrongAction:   rec.WrongAction,
		CorrectAction: rec.CorrectAction,
		CreatedTs:     rec.Timestamp.Unix(),
	})
	return err
}

func (p *StorePersister) SaveSuccess(ctx context.Context, rec SuccessRecord) error {
	_, err := p.store.CreateRoutingSuccess(ctx, &store.RoutingSuccess{
		Query:          rec.Query,
		Action:         rec.Action,
		Classification: rec.Classification,
		CreatedTs:      rec.Timestamp.Unix(),
	})
	return err
}
