package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Lesson is a persisted learning insight derived from resolved signals
type Lesson struct {
	LessonID        string
	CreatedAt       time.Time
	SignalIDs       []string
	PatternType     string
	Observation     string
	Conclusion      string
	ActionSuggested string
	SampleSize      int
	Confidence      float64
	Validated       bool
}

// SaveLesson inserts a learning lesson
func (db *DB) SaveLesson(ctx context.Context, lesson *Lesson) error {
	query := `
		INSERT INTO lessons (lesson_id, created_at, signal_ids, pattern_type,
			observation, conclusion, action_suggested, sample_size, confidence, validated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx, query,
		lesson.LessonID, lesson.CreatedAt, lesson.SignalIDs, lesson.PatternType,
		lesson.Observation, lesson.Conclusion, lesson.ActionSuggested,
		lesson.SampleSize, lesson.Confidence, lesson.Validated,
	)
	if err != nil {
		log.Error().
			Err(err).
			Str("lesson_id", lesson.LessonID).
			Str("pattern_type", lesson.PatternType).
			Msg("Failed to save lesson")
		return fmt.Errorf("failed to save lesson: %w", err)
	}

	log.Info().
		Str("lesson_id", lesson.LessonID).
		Str("pattern_type", lesson.PatternType).
		Int("sample_size", lesson.SampleSize).
		Msg("Lesson saved")

	return nil
}

// GetLessons retrieves recent lessons, newest first
func (db *DB) GetLessons(ctx context.Context, limit int) ([]*Lesson, error) {
	query := `
		SELECT lesson_id, created_at, signal_ids, pattern_type, observation,
			conclusion, action_suggested, sample_size, confidence, validated
		FROM lessons
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer rows.Close()

	var lessons []*Lesson
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(
			&l.LessonID, &l.CreatedAt, &l.SignalIDs, &l.PatternType,
			&l.Observation, &l.Conclusion, &l.ActionSuggested,
			&l.SampleSize, &l.Confidence, &l.Validated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lesson row: %w", err)
		}
		lessons = append(lessons, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lesson rows: %w", err)
	}
	return lessons, nil
}
