package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"server-browser/internal/domain"
)

type SessionRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSessionRepository(sqlDB *sql.DB, logger zerolog.Logger) *SessionRepository {
	return &SessionRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// Record appends a join to the session log and returns the stored entry.
func (r *SessionRepository) Record(ctx context.Context, address, serverName string) (domain.Session, error) {
	id, err := gonanoid.New()
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to generate session id: %w", err)
	}

	session := domain.Session{
		ID:          id,
		Address:     address,
		ServerName:  serverName,
		ConnectedAt: time.Now().UTC(),
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO session_log (id, address, server_name, connected_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.Address, session.ServerName, session.ConnectedAt)
	if err != nil {
		r.logger.Error().Err(err).Str("address", address).Msg("failed to record session")
		return domain.Session{}, fmt.Errorf("failed to record session: %w", err)
	}

	r.logger.Debug().Str("address", address).Str("session_id", id).Msg("session recorded")
	return session, nil
}

// Recent returns the newest entries of the join trail, newest first.
func (r *SessionRepository) Recent(ctx context.Context, limit int) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, address, server_name, connected_at FROM session_log
		 ORDER BY connected_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.Address, &s.ServerName, &s.ConnectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return sessions, nil
}

// LastConnected returns the most recent join, or ErrNotFound when the
// player has never connected anywhere.
func (r *SessionRepository) LastConnected(ctx context.Context) (domain.Session, error) {
	var s domain.Session
	err := r.db.QueryRowContext(ctx,
		`SELECT id, address, server_name, connected_at FROM session_log
		 ORDER BY connected_at DESC, id LIMIT 1`).
		Scan(&s.ID, &s.Address, &s.ServerName, &s.ConnectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("last connected: %w", ErrNotFound)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to read last session: %w", err)
	}
	return s, nil
}
