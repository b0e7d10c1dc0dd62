package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Turn is a single conversation message.
type Turn struct {
	ID        int64
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// AppendTurn records one message in a session.
func (s *Store) AppendTurn(sessionID, role, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO conversations (session_id, role, content) VALUES (?, ?, ?)`,
		sessionID, role, content)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// GetRecentHistory returns the most recent limit turns for a session, in
// chronological order.
func (s *Store) GetRecentHistory(sessionID string, limit int) ([]Turn, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, role, content, created_at
		 FROM conversations WHERE session_id = ?
		 ORDER BY id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returned newest first; flip to chronological.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// GetOrCreateSession maps an external chat identity (channel plus external
// id) to a stable internal session id, minting one on first contact.
func (s *Store) GetOrCreateSession(channel, externalID string) (string, error) {
	var sessionID string
	err := s.db.QueryRow(
		`SELECT session_id FROM chat_sessions WHERE channel = ? AND external_id = ?`,
		channel, externalID).Scan(&sessionID)
	if err == nil {
		return sessionID, nil
	}

	sessionID = uuid.NewString()
	if _, err := s.db.Exec(
		`INSERT INTO chat_sessions (channel, external_id, session_id) VALUES (?, ?, ?)
		 ON CONFLICT(channel, external_id) DO NOTHING`,
		channel, externalID, sessionID); err != nil {
		return "", fmt.Errorf("failed to create session mapping: %w", err)
	}

	// Re-read in case a concurrent caller won the insert race.
	if err := s.db.QueryRow(
		`SELECT session_id FROM chat_sessions WHERE channel = ? AND external_id = ?`,
		channel, externalID).Scan(&sessionID); err != nil {
		return "", fmt.Errorf("failed to read session mapping: %w", err)
	}
	return sessionID, nil
}

// SaveSummary stores a rolling summary for a session.
func (s *Store) SaveSummary(sessionID, summary string) error {
	_, err := s.db.Exec(
		`INSERT INTO session_summaries (session_id, summary) VALUES (?, ?)`,
		sessionID, summary)
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// LatestSummary returns the newest summary for a session, or "" when none
// exists.
func (s *Store) LatestSummary(sessionID string) (string, error) {
	var summary string
	err := s.db.QueryRow(
		`SELECT summary FROM session_summaries WHERE session_id = ?
		 ORDER BY id DESC LIMIT 1`, sessionID).Scan(&summary)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read summary: %w", err)
	}
	return summary, nil
}

// TrimHistory deletes all but the most recent keep turns of a session. Used
// after summarization folds older turns into the rolling summary.
func (s *Store) TrimHistory(sessionID string, keep int) error {
	_, err := s.db.Exec(
		`DELETE FROM conversations WHERE session_id = ? AND id NOT IN (
			SELECT id FROM conversations WHERE session_id = ? ORDER BY id DESC LIMIT ?)`,
		sessionID, sessionID, keep)
	if err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	return nil
}
