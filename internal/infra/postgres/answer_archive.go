package postgres

import (
	"context"
	"fmt"
	"time"

	"classroom-live/internal/app"
	"classroom-live/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AnswerArchive stores normalized live answers and serves them back as history.
type AnswerArchive struct {
	pool *pgxpool.Pool
}

var _ app.AnswerHistory = (*AnswerArchive)(nil)

func NewAnswerArchive(pool *pgxpool.Pool) *AnswerArchive {
	return &AnswerArchive{pool: pool}
}

// Save inserts one answer. Answers without an id get a generated one; an id
// already archived is ignored.
func (a *AnswerArchive) Save(ctx context.Context, view domain.AnswerViewModel) error {
	if view.RoomID == "" {
		return domain.ErrRoomRequired
	}
	id := view.ID
	if id == "" {
		id = uuid.NewString()
	}
	attempt := view.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO answer_events (
			id, room_id, student_id, student_name, game_id, question_id, question_text,
			answer, selected_option_id, selected_option_text, is_correct, attempt, elapsed_ms, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`,
		id, view.RoomID, view.StudentID, view.StudentName, view.GameID, view.QuestionID, view.QuestionText,
		view.Answer, view.SelectedOptionID, view.SelectedOptionText, view.IsCorrect, attempt, view.ElapsedMs,
		parseSentAt(view.SentAt),
	)
	if err != nil {
		return fmt.Errorf("archive answer: %w", err)
	}
	return nil
}

// FetchRoomAnswers returns archived answers of a room in arrival order.
func (a *AnswerArchive) FetchRoomAnswers(ctx context.Context, roomID string, filters domain.AnswerFilters) ([]domain.AnswerRecord, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id, room_id, student_id, student_name, game_id, question_id, question_text,
			answer, selected_option_id, selected_option_text, is_correct, attempt, elapsed_ms,
			sent_at, created_at
		FROM answer_events
		WHERE room_id = $1
			AND ($2::text = '' OR student_id = $2)
			AND ($3::text = '' OR question_id = $3)
		ORDER BY created_at, id`,
		roomID, filters.StudentID, filters.QuestionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var records []domain.AnswerRecord
	for rows.Next() {
		var (
			rec       domain.AnswerRecord
			isCorrect *bool
			sentAt    *time.Time
			createdAt time.Time
		)
		if err := rows.Scan(
			&rec.ID, &rec.RoomID, &rec.StudentID, &rec.StudentName, &rec.GameID, &rec.QuestionID, &rec.QuestionText,
			&rec.Answer, &rec.SelectedOptionID, &rec.SelectedOptionText, &isCorrect, &rec.Attempt, &rec.ElapsedMs,
			&sentAt, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		rec.IsCorrect = isCorrect
		if sentAt != nil {
			rec.SentAt = domain.FormatISO(*sentAt)
		}
		rec.CreatedAt = domain.FormatISO(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	return records, nil
}

func parseSentAt(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	return &t
}
