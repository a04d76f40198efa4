package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/copyleftdev/scrybe/pkg/models"
)

type sessionDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Sessions persists accepted sessions. Signal bundles are stored as
// JSONB columns; the fingerprint hash is indexed for lookback queries.
type Sessions struct {
	DB sessionDB
}

func NewSessions(db sessionDB) *Sessions {
	return &Sessions{DB: db}
}

func (s *Sessions) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			fingerprint_hash TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			ip TEXT NOT NULL,
			user_agent TEXT NOT NULL,
			network JSONB NOT NULL,
			browser JSONB NOT NULL,
			behavioral JSONB NOT NULL,
			components JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_fingerprint ON sessions (fingerprint_hash);
		CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions (created_at);
	`)
	if err != nil {
		return fmt.Errorf("ensure sessions schema: %w", err)
	}
	return nil
}

func (s *Sessions) Insert(ctx context.Context, sess models.Session) error {
	network, err := json.Marshal(sess.Network)
	if err != nil {
		return fmt.Errorf("marshal network signals: %w", err)
	}
	browser, err := json.Marshal(sess.Browser)
	if err != nil {
		return fmt.Errorf("marshal browser signals: %w", err)
	}
	behavioral, err := json.Marshal(sess.Behavioral)
	if err != nil {
		return fmt.Errorf("marshal behavioral signals: %w", err)
	}
	components, err := json.Marshal(sess.Fingerprint.Components)
	if err != nil {
		return fmt.Errorf("marshal fingerprint components: %w", err)
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO sessions
		(session_id, created_at, fingerprint_hash, confidence, ip, user_agent, network, browser, behavioral, components)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, sess.ID, sess.Timestamp, sess.Fingerprint.Hash, sess.Fingerprint.Confidence,
		sess.Network.IP, sess.Browser.UserAgent, network, browser, behavioral, components)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionSummary is the lookback row for operational queries.
type SessionSummary struct {
	ID              string    `json:"session_id"`
	CreatedAt       time.Time `json:"created_at"`
	FingerprintHash string    `json:"fingerprint_hash"`
	Confidence      float64   `json:"confidence"`
	IP              string    `json:"ip"`
	UserAgent       string    `json:"user_agent"`
}

func (s *Sessions) Recent(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.DB.Query(ctx, `
		SELECT session_id, created_at, fingerprint_hash, confidence, ip, user_agent
		FROM sessions ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()
	out := []SessionSummary{}
	for rows.Next() {
		var row SessionSummary
		if err := rows.Scan(&row.ID, &row.CreatedAt, &row.FingerprintHash, &row.Confidence, &row.IP, &row.UserAgent); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountByFingerprint reports how many sessions share a fingerprint hash,
// which is the basic returning-browser signal.
func (s *Sessions) CountByFingerprint(ctx context.Context, hash string) (int64, error) {
	var count int64
	row := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE fingerprint_hash=$1`, hash)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count sessions by fingerprint: %w", err)
	}
	return count, nil
}
