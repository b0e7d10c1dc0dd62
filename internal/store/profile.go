package store

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ProfileFact is one learned fact about the user.
type ProfileFact struct {
	Category   string
	Key        string
	Value      string
	Confidence float64
	UpdatedAt  time.Time
}

// UpsertProfileFact inserts or updates a fact.
//
// An existing fact only changes when the new confidence exceeds the stored
// confidence by more than 0.1. That hysteresis keeps a single offhand remark
// from overwriting a well-established fact.
func (s *Store) UpsertProfileFact(category, key, value string, confidence float64) (bool, error) {
	var existing float64
	err := s.db.QueryRow(
		`SELECT confidence FROM user_profile WHERE category = ? AND key = ?`,
		category, key).Scan(&existing)
	switch {
	case err == nil:
		if confidence <= existing+0.1 {
			return false, nil
		}
		if _, err := s.db.Exec(
			`UPDATE user_profile SET value = ?, confidence = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE category = ? AND key = ?`,
			value, confidence, category, key); err != nil {
			return false, fmt.Errorf("failed to update profile fact: %w", err)
		}
		return true, nil
	case isNoRows(err):
		if _, err := s.db.Exec(
			`INSERT INTO user_profile (category, key, value, confidence) VALUES (?, ?, ?, ?)`,
			category, key, value, confidence); err != nil {
			return false, fmt.Errorf("failed to insert profile fact: %w", err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("failed to read profile fact: %w", err)
	}
}

// GetProfile returns facts at or above minConfidence, highest confidence
// first, then by category and key for a stable order among ties.
func (s *Store) GetProfile(minConfidence float64) ([]ProfileFact, error) {
	rows, err := s.db.Query(
		`SELECT category, key, value, confidence, updated_at
		 FROM user_profile
		 WHERE confidence >= ?
		 ORDER BY confidence DESC, category, key`, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// SearchProfile returns facts whose key or value contains the query,
// case-insensitively, highest confidence first.
func (s *Store) SearchProfile(query string, limit int) ([]ProfileFact, error) {
	like := "%" + query + "%"
	rows, err := s.db.Query(
		`SELECT category, key, value, confidence, updated_at
		 FROM user_profile
		 WHERE key LIKE ? COLLATE NOCASE OR value LIKE ? COLLATE NOCASE
		 ORDER BY confidence DESC LIMIT ?`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search profile: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// DeleteProfileFact removes one fact. Deleting an absent fact is not an error.
func (s *Store) DeleteProfileFact(category, key string) error {
	if _, err := s.db.Exec(
		`DELETE FROM user_profile WHERE category = ? AND key = ?`, category, key); err != nil {
		return fmt.Errorf("failed to delete profile fact: %w", err)
	}
	return nil
}

// DecayProfileConfidence lowers confidence by 0.05 for facts untouched for
// 30 days, then removes facts whose confidence fell below 0.1. Returns the
// number of facts removed.
func (s *Store) DecayProfileConfidence(now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -30)
	if _, err := s.db.Exec(
		`UPDATE user_profile SET confidence = confidence - 0.05 WHERE updated_at < ?`,
		cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("failed to decay profile: %w", err)
	}
	res, err := s.db.Exec(`DELETE FROM user_profile WHERE confidence < 0.1`)
	if err != nil {
		return 0, fmt.Errorf("failed to prune profile: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed > 0 {
		s.logger.Info("profile facts pruned", zap.Int64("removed", removed))
	}
	return removed, nil
}

func scanFacts(rows *sql.Rows) ([]ProfileFact, error) {
	var facts []ProfileFact
	for rows.Next() {
		var f ProfileFact
		if err := rows.Scan(&f.Category, &f.Key, &f.Value, &f.Confidence, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
