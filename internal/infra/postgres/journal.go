// Package postgres persists the lottery event stream.
package postgres

import (
	"context"
	"encoding/json"
	"time"

	"lotto/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// Schema creates the append-only event table.
const Schema = `
CREATE TABLE IF NOT EXISTS lottery_events (
	id          BIGSERIAL PRIMARY KEY,
	kind        TEXT        NOT NULL,
	round_id    BIGINT      NOT NULL DEFAULT 0,
	ticket_id   BIGINT      NOT NULL DEFAULT 0,
	payload     JSONB       NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS lottery_events_round_idx ON lottery_events (round_id, id);
`

const insertEvent = `INSERT INTO lottery_events (kind, round_id, ticket_id, payload, occurred_at)
VALUES (:kind, :round_id, :ticket_id, :payload, :occurred_at)`

// Row is one stored event.
type Row struct {
	ID         int64     `db:"id" json:"id"`
	Kind       string    `db:"kind" json:"kind"`
	RoundID    int64     `db:"round_id" json:"roundId"`
	TicketID   int64     `db:"ticket_id" json:"ticketId"`
	Payload    string    `db:"payload" json:"-"`
	OccurredAt time.Time `db:"occurred_at" json:"occurredAt"`
}

// Event decodes the stored payload.
func (r Row) Event() (models.Event, error) {
	var evt models.Event
	err := json.Unmarshal([]byte(r.Payload), &evt)
	return evt, err
}

// NewRow builds the row stored for evt.
func NewRow(evt models.Event) (Row, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return Row{}, errors.Wrap(err, "encode event")
	}
	return Row{
		Kind:       string(evt.Kind),
		RoundID:    int64(evt.RoundID),
		TicketID:   int64(evt.TicketID),
		Payload:    string(payload),
		OccurredAt: evt.OccurredAt,
	}, nil
}

// Open connects to Postgres and configures the pool.
func Open(dsn string, maxOpen int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	return db, nil
}

// Journal is an events.Sink writing to lottery_events.
type Journal struct {
	db *sqlx.DB
}

// NewJournal wraps an open database handle.
func NewJournal(db *sqlx.DB) *Journal {
	return &Journal{db: db}
}

// Migrate creates the table if needed.
func (j *Journal) Migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, Schema)
	return errors.Wrap(err, "migrate lottery_events")
}

// Write implements events.Sink.
func (j *Journal) Write(ctx context.Context, evt models.Event) error {
	row, err := NewRow(evt)
	if err != nil {
		return err
	}
	_, err = j.db.NamedExecContext(ctx, insertEvent, row)
	return errors.Wrapf(err, "insert %s event", evt.Kind)
}

// Recent returns the newest events, newest first. roundID 0 means all rounds.
func (j *Journal) Recent(ctx context.Context, roundID uint64, limit int) ([]Row, error) {
	limit = clampLimit(limit)
	rows := []Row{}
	var err error
	if roundID == 0 {
		err = j.db.SelectContext(ctx, &rows,
			`SELECT id, kind, round_id, ticket_id, payload, occurred_at FROM lottery_events ORDER BY id DESC LIMIT $1`, limit)
	} else {
		err = j.db.SelectContext(ctx, &rows,
			`SELECT id, kind, round_id, ticket_id, payload, occurred_at FROM lottery_events WHERE round_id = $1 ORDER BY id DESC LIMIT $2`, roundID, limit)
	}
	return rows, errors.Wrap(err, "select lottery_events")
}

// Close releases the pool.
func (j *Journal) Close() error {
	return j.db.Close()
}

// clampLimit defaults a missing limit to 100 and caps it at 500.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 500:
		return 500
	}
	return limit
}
