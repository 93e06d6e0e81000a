// ABOUTME: Browser session persistence for signed-in users
// ABOUTME: Sessions hold provider tokens and expire independently of them

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession stores a new browser session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *BrowserSession) error {
	query := `
		INSERT INTO browser_sessions (id, user_id, email, display_name, access_token, refresh_token,
			token_expiry, created_at, expires_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.Email,
		session.DisplayName,
		session.AccessToken,
		session.RefreshToken,
		formatTime(session.TokenExpiry),
		formatTime(session.CreatedAt),
		formatTime(session.ExpiresAt),
		formatTime(session.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created browser session", "user_id", session.UserID)
	return nil
}

// GetSession retrieves a session that has not expired.
// Returns ErrNotFound if it doesn't exist or has expired.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*BrowserSession, error) {
	query := `
		SELECT id, user_id, email, display_name, access_token, refresh_token,
			token_expiry, created_at, expires_at, last_seen_at
		FROM browser_sessions
		WHERE id = ? AND expires_at > ?
	`

	var session BrowserSession
	var tokenExpiry, createdAt, expiresAt string
	var lastSeen sql.NullString

	err := s.db.QueryRowContext(ctx, query, id, formatTime(s.now())).Scan(
		&session.ID,
		&session.UserID,
		&session.Email,
		&session.DisplayName,
		&session.AccessToken,
		&session.RefreshToken,
		&tokenExpiry,
		&createdAt,
		&expiresAt,
		&lastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	if session.TokenExpiry, err = parseTime("token_expiry", tokenExpiry); err != nil {
		return nil, err
	}
	if session.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if session.ExpiresAt, err = parseTime("expires_at", expiresAt); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		if session.LastSeenAt, err = parseTime("last_seen_at", lastSeen.String); err != nil {
			return nil, err
		}
	}

	return &session, nil
}

// UpdateSessionTokens replaces the provider tokens after a refresh.
func (s *SQLiteStore) UpdateSessionTokens(ctx context.Context, id, accessToken, refreshToken string, tokenExpiry time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE browser_sessions SET access_token = ?, refresh_token = ?, token_expiry = ?
		WHERE id = ?
	`, accessToken, refreshToken, formatTime(tokenExpiry), id)
	if err != nil {
		return fmt.Errorf("updating session tokens: %w", err)
	}
	return requireOneRow(result)
}

// TouchSession records activity on a session.
func (s *SQLiteStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE browser_sessions SET last_seen_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return requireOneRow(result)
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM browser_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes all expired sessions and returns how many.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM browser_sessions WHERE expires_at <= ?`, formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return result.RowsAffected()
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
