package app

import (
	"time"

	"classroom-live/internal/domain"
)

// BuildAnswerSubmission fills the defaults every delivered submission must carry:
// attempt 1, sentAt now, replace false. Required fields are not validated here.
func BuildAnswerSubmission(in domain.AnswerSubmission) domain.AnswerSubmission {
	return BuildAnswerSubmissionWithClock(in, time.Now)
}

// BuildAnswerSubmissionWithClock is BuildAnswerSubmission with an injectable clock.
func BuildAnswerSubmissionWithClock(in domain.AnswerSubmission, now func() time.Time) domain.AnswerSubmission {
	out := in
	if out.Attempt <= 0 {
		out.Attempt = 1
	}
	if out.SentAt == "" {
		out.SentAt = domain.FormatISO(now())
	}
	return out
}
