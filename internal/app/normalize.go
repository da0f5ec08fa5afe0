package app

import (
	"encoding/json"
	"fmt"

	"classroom-live/internal/domain"
)

// NormalizeAnswerRecord maps any producer's answer shape onto the canonical view.
// It is the only place allowed to read the raw Correct/IsCorrect fields.
func NormalizeAnswerRecord(rec domain.AnswerRecord) domain.AnswerViewModel {
	name := rec.StudentName
	if name == "" {
		name = rec.StudentID
	}

	var correct *bool
	switch {
	case rec.Correct != nil:
		correct = domain.Bool(*rec.Correct)
	case rec.IsCorrect != nil:
		correct = domain.Bool(*rec.IsCorrect)
	}
	var isCorrect *bool
	if correct != nil {
		isCorrect = domain.Bool(*correct)
	}

	return domain.AnswerViewModel{
		ID:                 rec.ID,
		RoomID:             rec.RoomID,
		StudentID:          rec.StudentID,
		StudentName:        name,
		GameID:             rec.GameID,
		QuestionID:         rec.QuestionID,
		QuestionText:       rec.QuestionText,
		Answer:             rec.Answer,
		SelectedOptionID:   rec.SelectedOptionID,
		SelectedOptionText: rec.SelectedOptionText,
		Correct:            correct,
		IsCorrect:          isCorrect,
		Attempt:            rec.Attempt,
		ElapsedMs:          rec.ElapsedMs,
		SentAt:             rec.SentAt,
		CreatedAt:          rec.CreatedAt,
	}
}

// NormalizeAnswerRecords normalizes a batch, keeping order.
func NormalizeAnswerRecords(recs []domain.AnswerRecord) []domain.AnswerViewModel {
	views := make([]domain.AnswerViewModel, 0, len(recs))
	for _, rec := range recs {
		views = append(views, NormalizeAnswerRecord(rec))
	}
	return views
}

// inboundAnswer is the loosest shape seen on the answers topic: wire names,
// record names, and either correctness field.
type inboundAnswer struct {
	ID                 string  `json:"id"`
	RoomID             string  `json:"roomId"`
	StudentID          string  `json:"studentId"`
	StudentName        *string `json:"studentName"`
	GameID             string  `json:"gameId"`
	QuestionID         string  `json:"questionId"`
	QuestionText       *string `json:"questionText"`
	Answer             *string `json:"answer"`
	SelectedOptionID   *string `json:"selectedOptionId"`
	SelectedOptionText *string `json:"selectedOptionText"`
	Correct            *bool   `json:"correct"`
	IsCorrect          *bool   `json:"isCorrect"`
	Attempt            int     `json:"attempt"`
	ElapsedMillis      *int64  `json:"elapsedMillis"`
	ElapsedMs          *int64  `json:"elapsedMs"`
	AnsweredAt         string  `json:"answeredAt"`
	SentAt             string  `json:"sentAt"`
	CreatedAt          string  `json:"createdAt"`
}

// DecodeAnswerEvent parses one answers-topic message into a record, injecting roomID.
func DecodeAnswerEvent(roomID string, data []byte) (domain.AnswerRecord, error) {
	var in inboundAnswer
	if err := json.Unmarshal(data, &in); err != nil {
		return domain.AnswerRecord{}, fmt.Errorf("decode answer event: %w", err)
	}

	rec := domain.AnswerRecord{
		ID:         in.ID,
		RoomID:     roomID,
		StudentID:  in.StudentID,
		GameID:     in.GameID,
		QuestionID: in.QuestionID,
		Correct:    in.Correct,
		IsCorrect:  in.IsCorrect,
		Attempt:    in.Attempt,
		SentAt:     firstNonEmpty(in.AnsweredAt, in.SentAt),
		CreatedAt:  in.CreatedAt,
	}
	rec.StudentName = deref(in.StudentName)
	rec.QuestionText = deref(in.QuestionText)
	rec.SelectedOptionID = deref(in.SelectedOptionID)
	rec.SelectedOptionText = deref(in.SelectedOptionText)
	rec.Answer = firstNonEmpty(deref(in.Answer), rec.SelectedOptionText)
	switch {
	case in.ElapsedMillis != nil:
		rec.ElapsedMs = *in.ElapsedMillis
	case in.ElapsedMs != nil:
		rec.ElapsedMs = *in.ElapsedMs
	}
	return rec, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
