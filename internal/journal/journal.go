// Package journal records member lifecycle events in the member_events
// table. It is an append-only audit trail; the member tables stay the
// source of truth.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"memberportal/internal/database"
)

var ErrInvalidBatchSize = errors.New("batch size must be positive")

// Event is one recorded change.
type Event struct {
	ID        int64           `json:"id"`
	MemberID  int64           `json:"member_id"`
	Type      string          `json:"event_type"`
	Data      json.RawMessage `json:"event_data"`
	CreatedAt time.Time       `json:"created_at"`
}

type eventRow struct {
	ID        int64     `db:"id"`
	MemberID  int64     `db:"member_id"`
	Type      string    `db:"event_type"`
	Data      string    `db:"event_data"`
	CreatedAt time.Time `db:"created_at"`
}

func (r eventRow) event() Event {
	return Event{
		ID:        r.ID,
		MemberID:  r.MemberID,
		Type:      r.Type,
		Data:      json.RawMessage(r.Data),
		CreatedAt: r.CreatedAt,
	}
}

// Journal appends to and reads from member_events.
type Journal struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

func New(db *sqlx.DB) *Journal {
	return &Journal{
		db:     db,
		tracer: otel.Tracer("memberportal/journal"),
	}
}

// Append records an event for memberID with payload marshalled as JSON and
// returns the new event id.
func (j *Journal) Append(ctx context.Context, memberID int64, eventType string, payload any) (int64, error) {
	ctx, span := j.tracer.Start(ctx, "journal.append",
		trace.WithAttributes(
			attribute.Int64("member.id", memberID),
			attribute.String("event.type", eventType),
		),
	)
	defer span.End()

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event data: %w", err)
	}

	id, err := database.InsertID(ctx, j.db, `
		INSERT INTO member_events (member_id, event_type, event_data, created_at)
		VALUES (?, ?, ?, ?)`,
		memberID, eventType, string(data), time.Now().UTC(),
	)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("insert event: %w", err)
	}

	span.AddEvent("event.appended", trace.WithAttributes(attribute.Int64("event.id", id)))
	return id, nil
}

// Load returns every event of memberID, oldest first.
func (j *Journal) Load(ctx context.Context, memberID int64) ([]Event, error) {
	ctx, span := j.tracer.Start(ctx, "journal.load",
		trace.WithAttributes(attribute.Int64("member.id", memberID)),
	)
	defer span.End()

	var rows []eventRow
	err := j.db.SelectContext(ctx, &rows, j.db.Rebind(`
		SELECT id, member_id, event_type, event_data, created_at
		FROM member_events
		WHERE member_id = ?
		ORDER BY id ASC`), memberID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(rows)))
	return toEvents(rows), nil
}

// Stream returns up to batchSize events with an id greater than fromID, for
// cursor-style consumers.
func (j *Journal) Stream(ctx context.Context, fromID int64, batchSize int) ([]Event, error) {
	if batchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}

	ctx, span := j.tracer.Start(ctx, "journal.stream",
		trace.WithAttributes(
			attribute.Int64("from.id", fromID),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	var rows []eventRow
	err := j.db.SelectContext(ctx, &rows, j.db.Rebind(`
		SELECT id, member_id, event_type, event_data, created_at
		FROM member_events
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?`), fromID, batchSize)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query event stream: %w", err)
	}

	span.SetAttributes(attribute.Int("events.streamed", len(rows)))
	return toEvents(rows), nil
}

func toEvents(rows []eventRow) []Event {
	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.event())
	}
	return events
}
