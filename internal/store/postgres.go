package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres archives published schedules and the push queue durably.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the tables when missing (dev helper).
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schedules (
    id UUID PRIMARY KEY,
    snapshot_time BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    cost DOUBLE PRECISION NOT NULL,
    routes JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS subscriptions (
    id UUID PRIMARY KEY,
    url TEXT NOT NULL,
    secret TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS pushes (
    id UUID PRIMARY KEY,
    subscription_id UUID NOT NULL,
    url TEXT NOT NULL,
    secret TEXT NOT NULL DEFAULT '',
    event_type TEXT NOT NULL,
    payload JSONB NOT NULL,
    attempts INT NOT NULL DEFAULT 0,
    done BOOLEAN NOT NULL DEFAULT false,
    next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_error TEXT NOT NULL DEFAULT '',
    response_code INT NOT NULL DEFAULT 0
);`)
	return err
}

func (p *Postgres) SaveSchedule(ctx context.Context, rec ScheduleRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	routes, err := json.Marshal(rec.Schedule.Routes)
	if err != nil {
		return "", err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO schedules (id, snapshot_time, created_at, cost, routes) VALUES ($1,$2,$3,$4,$5)`,
		rec.ID, rec.SnapshotTime, rec.CreatedAt, rec.Cost, routes)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (p *Postgres) scanSchedule(row interface{ Scan(...any) error }) (*ScheduleRecord, error) {
	var rec ScheduleRecord
	var routes []byte
	if err := row.Scan(&rec.ID, &rec.SnapshotTime, &rec.CreatedAt, &rec.Cost, &routes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(routes, &rec.Schedule.Routes); err != nil {
		return nil, err
	}
	rec.Schedule.ID = rec.ID
	rec.Schedule.SnapshotTime = rec.SnapshotTime
	rec.Schedule.Cost = rec.Cost
	return &rec, nil
}

func (p *Postgres) LatestSchedule(ctx context.Context) (*ScheduleRecord, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id::text, snapshot_time, created_at, cost, routes FROM schedules ORDER BY created_at DESC LIMIT 1`)
	rec, err := p.scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (p *Postgres) ListSchedules(ctx context.Context, limit int) ([]ScheduleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, snapshot_time, created_at, cost, routes FROM schedules ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScheduleRecord
	for rows.Next() {
		rec, err := p.scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, url, secret string) (Subscription, error) {
	s := Subscription{ID: uuid.New().String(), URL: url, Secret: secret}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, url, secret) VALUES ($1,$2,$3)`, s.ID, s.URL, s.Secret)
	return s, err
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret FROM subscriptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	return err
}

func (p *Postgres) EnqueuePush(ctx context.Context, push Push) error {
	if push.ID == "" {
		push.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO pushes (id, subscription_id, url, secret, event_type, payload) VALUES ($1,$2,$3,$4,$5,$6)`,
		push.ID, push.SubscriptionID, push.URL, push.Secret, push.EventType, push.Payload)
	return err
}

func (p *Postgres) FetchDuePushes(ctx context.Context, limit int) ([]Push, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, subscription_id::text, url, secret, event_type, payload, attempts
		   FROM pushes WHERE NOT done AND next_attempt_at <= now() LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Push
	for rows.Next() {
		var push Push
		if err := rows.Scan(&push.ID, &push.SubscriptionID, &push.URL, &push.Secret,
			&push.EventType, &push.Payload, &push.Attempts); err != nil {
			return nil, err
		}
		out = append(out, push)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkPush(ctx context.Context, id string, success bool, next *time.Time, lastErr string, code int) error {
	if success {
		_, err := p.db.ExecContext(ctx,
			`UPDATE pushes SET attempts=attempts+1, done=true, last_error=$2, response_code=$3 WHERE id=$1`,
			id, lastErr, code)
		return err
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE pushes SET attempts=attempts+1, next_attempt_at=COALESCE($2, next_attempt_at), last_error=$3, response_code=$4 WHERE id=$1`,
		id, next, lastErr, code)
	return err
}

func (p *Postgres) FailPush(ctx context.Context, id string, lastErr string, code int) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE pushes SET attempts=attempts+1, done=true, last_error=$2, response_code=$3 WHERE id=$1`,
		id, lastErr, code)
	return err
}
