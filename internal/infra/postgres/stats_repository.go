package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-quiz-service/internal/domain"
)

// StatsRepository appends finished-attempt records to Postgres and serves
// per-owner history, newest first.
type StatsRepository struct {
	pool *pgxpool.Pool
}

func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

func (r *StatsRepository) Record(ctx context.Context, owner string, rec domain.ResultRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO quiz_results
			(id, owner, difficulty, total_questions, correct_answers, wrong_answers,
			 unanswered, percentage, time_spent_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, owner, string(rec.Difficulty), rec.TotalQuestions, rec.CorrectAnswers,
		rec.WrongAnswers, rec.Unanswered, rec.Percentage, rec.TimeSpentSeconds, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quiz result: %w", err)
	}
	return nil
}

func (r *StatsRepository) History(ctx context.Context, owner string, limit int) ([]domain.ResultRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, difficulty, total_questions, correct_answers, wrong_answers,
		       unanswered, percentage, time_spent_seconds, created_at
		FROM quiz_results
		WHERE owner = $1
		ORDER BY created_at DESC
		LIMIT $2`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("query quiz history: %w", err)
	}
	defer rows.Close()

	var records []domain.ResultRecord
	for rows.Next() {
		var rec domain.ResultRecord
		var difficulty string
		if err := rows.Scan(&rec.ID, &difficulty, &rec.TotalQuestions, &rec.CorrectAnswers,
			&rec.WrongAnswers, &rec.Unanswered, &rec.Percentage, &rec.TimeSpentSeconds, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quiz result: %w", err)
		}
		rec.Difficulty = domain.Difficulty(difficulty)
		records = append(records, rec)
	}
	return records, rows.Err()
}
