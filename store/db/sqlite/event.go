package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/hrygo/calroute/store"
)

func (d *DB) CreateEvent(ctx context.Context, create *store.Event) (*store.Event, error) {
	recurrenceRule := ""
	if create.RecurrenceRule != nil {
		recurrenceRule = *create.RecurrenceRule
	}
	fields := []string{
		"uid", "title", "description", "location",
		"start_ts", "end_ts", "timezone", "attendees", "recurrence_rule",
	}
	placeholderValues := []any{
		create.UID, create.Title, create.Description, create.Location,
		create.StartTs, create.EndTs, create.Timezone, encodeStrings(create.Attendees), recurrenceRule,
	}

	// Add optional timestamps
	if create.CreatedTs != 0 {
		fields = append(fields, "created_ts")
		placeholderValues = append(placeholderValues, create.CreatedTs)
	}
	if create.UpdatedTs != 0 {
		fields = append(fields, "updated_ts")
		placeholderValues = append(placeholderValues, create.UpdatedTs)
	}

	stmt := `INSERT INTO event (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		RETURNING id, created_ts, updated_ts`

	if err := d.db.QueryRowContext(ctx, stmt, placeholderValues...).Scan(
		&create.ID,
		&create.CreatedTs,
		&create.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	return create, nil
}

func (d *DB) ListEvents(ctx context.Context, find *store.FindEvent) ([]*store.Event, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "event.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "event.uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	// An event overlaps [StartTs, EndTs) if event.start < EndTs AND event.end > StartTs.
	if v := find.EndTs; v != nil {
		where, args = append(where, "event.start_ts < "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.StartTs; v != nil {
		where, args = append(where, "event.end_ts > "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT
			id, uid, created_ts, updated_ts,
			title, description, location,
			start_ts, end_ts, timezone, attendees, recurrence_rule
		FROM event
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY event.start_ts ASC, event.id ASC`

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
		if find.Offset != nil {
			query = fmt.Sprintf("%s OFFSET %d", query, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Event, 0)
	for rows.Next() {
		var event store.Event
		var attendees, recurrenceRule string

		if err := rows.Scan(
			&event.ID,
			&event.UID,
			&event.CreatedTs,
			&event.UpdatedTs,
			&event.Title,
			&event.Description,
			&event.Location,
			&event.StartTs,
			&event.EndTs,
			&event.Timezone,
			&attendees,
			&recurrenceRule,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Attendees = decodeStrings(attendees)
		if recurrenceRule != "" {
			event.RecurrenceRule = &recurrenceRule
		}
		list = append(list, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateEvent(ctx context.Context, update *store.UpdateEvent) error {
	set, args := []string{}, []any{}

	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Title; v != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Description; v != nil {
		set, args = append(set, "description = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Location; v != nil {
		set, args = append(set, "location = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.StartTs; v != nil {
		set, args = append(set, "start_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.EndTs; v != nil {
		set, args = append(set, "end_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Attendees; v != nil {
		set, args = append(set, "attendees = "+placeholder(len(args)+1)), append(args, encodeStrings(*v))
	}
	if v := update.RecurrenceRule; v != nil {
		set, args = append(set, "recurrence_rule = "+placeholder(len(args)+1)), append(args, *v)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, update.UID)
	stmt := `UPDATE event SET ` + strings.Join(set, ", ") + ` WHERE uid = ` + placeholder(len(args))
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("event not found: %s", update.UID)
	}
	return nil
}

func (d *DB) DeleteEvent(ctx context.Context, delete *store.DeleteEvent) (int64, error) {
	result, err := d.db.ExecContext(ctx, `DELETE FROM event WHERE uid = ?`, delete.UID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete event: %w", err)
	}
	return result.RowsAffected()
}
