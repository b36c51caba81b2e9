package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/swarmguard/leviathan/internal/event"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq         BIGSERIAL PRIMARY KEY,
	event_id    TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	actor_id    TEXT NOT NULL,
	payload     JSONB NOT NULL,
	prev_hash   TEXT NOT NULL DEFAULT '',
	hash        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_timestamp_idx ON events (timestamp);
CREATE UNIQUE INDEX IF NOT EXISTS events_event_id_idx ON events (event_id);

CREATE OR REPLACE FUNCTION events_append_only() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'events table is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS events_no_update ON events;
CREATE TRIGGER events_no_update BEFORE UPDATE ON events
	FOR EACH ROW EXECUTE FUNCTION events_append_only();

DROP TRIGGER IF EXISTS events_no_delete ON events;
CREATE TRIGGER events_no_delete BEFORE DELETE ON events
	FOR EACH ROW EXECUTE FUNCTION events_append_only();
`

// advisoryLockKey is an arbitrary fixed key scoping the single-appender
// lock; one journal instance serves one target's events table.
const advisoryLockKey = 0x4c455649 // "LEVI"

// Postgres is the relational journal back-end, serializing appends with a
// transaction-level advisory lock and enforcing append-only at the
// storage layer via BEFORE UPDATE/DELETE triggers (H3).
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects via pgxpool and applies the schema idempotently.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Append(ctx context.Context, e event.Event) (event.Event, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return event.Event{}, fmt.Errorf("acquire advisory lock: %w", err)
	}

	if existing, ok, err := queryByEventID(ctx, tx, e.EventID); err != nil {
		return event.Event{}, fmt.Errorf("check existing event_id: %w", err)
	} else if ok {
		return existing, ErrDuplicateEvent
	}

	var lastHash string
	row := tx.QueryRow(ctx, "SELECT hash FROM events ORDER BY seq DESC LIMIT 1")
	if err := row.Scan(&lastHash); err != nil {
		lastHash = ""
	}

	e.PrevHash = lastHash
	e.Hash = event.ComputeHash(e)

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return event.Event{}, fmt.Errorf("encode payload: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO events (event_id, event_type, timestamp, actor_id, payload, prev_hash, hash)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.EventID, string(e.EventType), e.Timestamp, e.ActorID, payload, e.PrevHash, e.Hash)
	if err != nil {
		return event.Event{}, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return event.Event{}, fmt.Errorf("commit tx: %w", err)
	}
	return e, nil
}

// queryByEventID looks up an already-appended event by its logical
// EventID within tx, used to make Append idempotent under the unique
// events_event_id_idx constraint.
func queryByEventID(ctx context.Context, tx pgx.Tx, eventID string) (event.Event, bool, error) {
	var e event.Event
	var payload []byte
	row := tx.QueryRow(ctx,
		`SELECT event_id, event_type, timestamp, actor_id, payload, prev_hash, hash
		 FROM events WHERE event_id = $1`, eventID)
	switch err := row.Scan(&e.EventID, &e.EventType, &e.Timestamp, &e.ActorID, &payload, &e.PrevHash, &e.Hash); {
	case err == pgx.ErrNoRows:
		return event.Event{}, false, nil
	case err != nil:
		return event.Event{}, false, err
	}
	if err := json.Unmarshal(payload, &e.Payload); err != nil {
		return event.Event{}, false, fmt.Errorf("decode payload: %w", err)
	}
	return e, true, nil
}

func (p *Postgres) Scan(ctx context.Context, since string, limit int) ([]event.Event, error) {
	query := "SELECT event_id, event_type, timestamp, actor_id, payload, prev_hash, hash FROM events"
	args := []any{}
	if since != "" {
		query += " WHERE seq > (SELECT seq FROM events WHERE hash = $1)"
		args = append(args, since)
	}
	query += " ORDER BY seq ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var e event.Event
		var payload []byte
		if err := rows.Scan(&e.EventID, &e.EventType, &e.Timestamp, &e.ActorID, &payload, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("decode event row: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) LastHash(ctx context.Context) (string, error) {
	var hash string
	row := p.pool.QueryRow(ctx, "SELECT hash FROM events ORDER BY seq DESC LIMIT 1")
	if err := row.Scan(&hash); err != nil {
		return "", nil
	}
	return hash, nil
}

func (p *Postgres) Verify(ctx context.Context) (bool, error) {
	events, err := p.Scan(ctx, "", 0)
	if err != nil {
		return false, err
	}
	return verifyChain(events)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
