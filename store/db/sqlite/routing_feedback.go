package sqlite

import (
	"context"
	"fmt"

	"github.com/hrygo/calroute/store"
)

func (d *DB) CreateRoutingCorrection(ctx context.Context, create *store.RoutingCorrection) (*store.RoutingCorrection, error) {
	stmt := `INSERT INTO routing_correction (query, wrong_action, correct_action, created_ts)
		VALUES (?, ?, ?, COALESCE(NULLIF(?, 0), strftime('%s', 'now')))
		RETURNING id, created_ts`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.Query, create.WrongAction, create.CorrectAction, create.CreatedTs,
	).Scan(&create.ID, &create.CreatedTs); err != nil {
		return nil, fmt.Errorf("failed to create routing correction: %w", err)
	}
	return create, nil
}

// ListRoutingCorrections returns the most recent corrections, oldest first.
func (d *DB) ListRoutingCorrections(ctx context.Context, find *store.FindRoutingCorrection) ([]*store.RoutingCorrection, error) {
	query := `SELECT id, query, wrong_action, correct_action, created_ts FROM routing_correction ORDER BY id DESC`
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}
	query = `SELECT * FROM (` + query + `) ORDER BY id ASC`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query routing corrections: %w", err)
	}
	defer rows.Close()

	list := make([]*store.RoutingCorrection, 0)
	for rows.Next() {
		var c store.RoutingCorrection
		if err := rows.Scan(&c.ID, &c.Query, &c.WrongAction, &c.CorrectAction, &c.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan routing correction: %w", err)
		}
		list = append(list, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate routing corrections: %w", err)
	}
	return list, nil
}

func (d *DB) CreateRoutingSuccess(ctx context.Context, create *store.RoutingSuccess) (*store.RoutingSuccess, error) {
	stmt := `INSERT INTO routing_success (query, action, classification, created_ts)
		VALUES (?, ?, ?, COALESCE(NULLIF(?, 0), strftime('%s', 'now')))
		RETURNING id, created_ts`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.Query, create.Action, create.Classification, create.CreatedTs,
	).Scan(&create.ID, &create.CreatedTs); err != nil {
		return nil, fmt.Errorf("failed to create routing success: %w", err)
	}
	return create, nil
}

// ListRoutingSuccesses returns the most recent successes, oldest first.
func (d *DB) ListRoutingSuccesses(ctx context.Context, find *store.FindRoutingSuccess) ([]*store.RoutingSuccess, error) {
	query := `SELECT id, query, action, classification, created_ts FROM routing_success ORDER BY id DESC`
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}
	query = `SELECT * FROM (` + query + `) ORDER BY id ASC`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query routing successes: %w", err)
	}
	defer rows.Close()

	list := make([]*store.RoutingSuccess, 0)
	for rows.Next() {
		var s store.RoutingSuccess
		if err := rows.Scan(&s.ID, &s.Query, &s.Action, &s.Classification, &s.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan routing success: %w", err)
		}
		list = append(list, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate routing successes: %w", err)
	}
	return list, nil
}
