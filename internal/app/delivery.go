package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"classroom-live/internal/domain"
	"github.com/rs/zerolog"
)

const unknownGameID = "unknown"

// AnswerPoster persists an answer over REST.
type AnswerPoster interface {
	SubmitAnswer(ctx context.Context, roomID string, submission domain.AnswerSubmission) error
}

// DeliveryChannel publishes answer events on a connection it does not own.
type DeliveryChannel struct {
	log zerolog.Logger
	now func() time.Time
}

func NewDeliveryChannel(log zerolog.Logger) *DeliveryChannel {
	return NewDeliveryChannelWithClock(log, time.Now)
}

// NewDeliveryChannelWithClock is test-only for deterministic timestamps.
func NewDeliveryChannelWithClock(log zerolog.Logger, now func() time.Time) *DeliveryChannel {
	return &DeliveryChannel{
		log: log.With().Str("component", "delivery").Logger(),
		now: now,
	}
}

// Deliver makes exactly one publish attempt over conn. There is no retry, no
// queueing and no REST fallback: the caller decides what to do with a failure.
func (d *DeliveryChannel) Deliver(roomID string, submission domain.AnswerSubmission, conn Publisher) domain.DeliveryResult {
	if submission.SentAt == "" {
		submission.SentAt = domain.FormatISO(d.now())
	}
	payload := BuildAnswerEventPayload(roomID, submission)

	if conn == nil || !conn.Connected() {
		d.log.Warn().
			Str("room_id", roomID).
			Str("student_id", submission.StudentID).
			Str("question_id", submission.QuestionID).
			Msg("answer not delivered: not connected")
		return domain.DeliveryResult{DeliveredVia: domain.ChannelWS, Success: false, Error: domain.ErrNotConnected}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.DeliveryResult{DeliveredVia: domain.ChannelWS, Success: false, Error: fmt.Errorf("encode answer: %w", err)}
	}

	if err := conn.Publish(domain.AnswerDestination(roomID), body); err != nil {
		d.log.Error().Err(err).
			Str("room_id", roomID).
			Str("student_id", submission.StudentID).
			Msg("answer publish failed")
		return domain.DeliveryResult{DeliveredVia: domain.ChannelWS, Success: false, Error: err}
	}

	d.log.Debug().
		Str("room_id", roomID).
		Str("student_id", submission.StudentID).
		Str("question_id", submission.QuestionID).
		Msg("answer published")
	return domain.DeliveryResult{DeliveredVia: domain.ChannelWS, Success: true}
}

// DeliverREST posts the submission to the answers endpoint. It is an explicit
// path chosen by the caller, never taken automatically after a failed Deliver.
func (d *DeliveryChannel) DeliverREST(ctx context.Context, roomID string, submission domain.AnswerSubmission, poster AnswerPoster) domain.DeliveryResult {
	submission = BuildAnswerSubmissionWithClock(submission, d.now)
	if err := poster.SubmitAnswer(ctx, roomID, submission); err != nil {
		d.log.Error().Err(err).Str("room_id", roomID).Msg("answer post failed")
		return domain.DeliveryResult{DeliveredVia: domain.ChannelREST, Success: false, Error: err}
	}
	return domain.DeliveryResult{DeliveredVia: domain.ChannelREST, Success: true}
}

// BuildAnswerEventPayload remaps a submission onto the wire schema.
func BuildAnswerEventPayload(roomID string, s domain.AnswerSubmission) domain.AnswerEventPayload {
	gameID := s.GameID
	if gameID == "" {
		gameID = unknownGameID
	}
	isCorrect := false
	if s.IsCorrect != nil {
		isCorrect = *s.IsCorrect
	}
	return domain.AnswerEventPayload{
		RoomID:             roomID,
		StudentID:          s.StudentID,
		StudentName:        optional(s.StudentName),
		GameID:             gameID,
		QuestionID:         s.QuestionID,
		QuestionText:       s.QuestionText,
		SelectedOptionID:   optional(s.SelectedOptionID),
		SelectedOptionText: optional(firstNonEmpty(s.SelectedOptionText, s.Answer)),
		IsCorrect:          isCorrect,
		ElapsedMillis:      s.ElapsedMs,
		AnsweredAt:         s.SentAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
