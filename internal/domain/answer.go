package domain

// AnswerSubmission is the in-process shape of one student's answer event.
// Optional string fields use the empty string for "absent".
type AnswerSubmission struct {
	StudentID  string `json:"studentId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`

	QuestionText       string `json:"questionText,omitempty"`
	StudentName        string `json:"studentName,omitempty"`
	GameID             string `json:"gameId,omitempty"`
	SelectedOptionID   string `json:"selectedOptionId,omitempty"`
	SelectedOptionText string `json:"selectedOptionText,omitempty"`

	IsCorrect *bool  `json:"isCorrect,omitempty"`
	ElapsedMs int64  `json:"elapsedMs,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
	SentAt    string `json:"sentAt,omitempty"`
	Replace   bool   `json:"replace"`
}

// AnswerEventPayload is the wire shape published on the answer destination.
// It never carries the raw answer; the text only travels as SelectedOptionText.
type AnswerEventPayload struct {
	RoomID             string  `json:"roomId"`
	StudentID          string  `json:"studentId"`
	StudentName        *string `json:"studentName"`
	GameID             string  `json:"gameId"`
	QuestionID         string  `json:"questionId"`
	QuestionText       string  `json:"questionText"`
	SelectedOptionID   *string `json:"selectedOptionId"`
	SelectedOptionText *string `json:"selectedOptionText"`
	IsCorrect          bool    `json:"isCorrect"`
	ElapsedMillis      int64   `json:"elapsedMillis"`
	AnsweredAt         string  `json:"answeredAt"`
}

// AnswerRecord is a persisted or streamed answer as producers send it. Producers
// disagree on the correctness field name, so both are kept; read them only
// through the normalizer.
type AnswerRecord struct {
	ID                 string `json:"id,omitempty"`
	RoomID             string `json:"roomId,omitempty"`
	StudentID          string `json:"studentId"`
	StudentName        string `json:"studentName,omitempty"`
	GameID             string `json:"gameId,omitempty"`
	QuestionID         string `json:"questionId"`
	QuestionText       string `json:"questionText,omitempty"`
	Answer             string `json:"answer"`
	SelectedOptionID   string `json:"selectedOptionId,omitempty"`
	SelectedOptionText string `json:"selectedOptionText,omitempty"`
	Correct            *bool  `json:"correct,omitempty"`
	IsCorrect          *bool  `json:"isCorrect,omitempty"`
	Attempt            int    `json:"attempt,omitempty"`
	ElapsedMs          int64  `json:"elapsedMs,omitempty"`
	SentAt             string `json:"sentAt,omitempty"`
	CreatedAt          string `json:"createdAt,omitempty"`
	Replace            bool   `json:"replace,omitempty"`
}

// AnswerViewModel is the canonical answer shape consumed by views and sinks.
// Correct and IsCorrect are always equal: both set or both nil.
type AnswerViewModel struct {
	ID                 string `json:"id,omitempty"`
	RoomID             string `json:"roomId,omitempty"`
	StudentID          string `json:"studentId"`
	StudentName        string `json:"studentName"`
	GameID             string `json:"gameId,omitempty"`
	QuestionID         string `json:"questionId"`
	QuestionText       string `json:"questionText,omitempty"`
	Answer             string `json:"answer"`
	SelectedOptionID   string `json:"selectedOptionId,omitempty"`
	SelectedOptionText string `json:"selectedOptionText,omitempty"`
	Correct            *bool  `json:"correct,omitempty"`
	IsCorrect          *bool  `json:"isCorrect,omitempty"`
	Attempt            int    `json:"attempt,omitempty"`
	ElapsedMs          int64  `json:"elapsedMs,omitempty"`
	SentAt             string `json:"sentAt,omitempty"`
	CreatedAt          string `json:"createdAt,omitempty"`
}

// AnswerFilters narrows a history query. Empty fields are not sent.
type AnswerFilters struct {
	StudentID  string
	QuestionID string
}

// Channel names a delivery path.
type Channel string

const (
	ChannelWS   Channel = "ws"
	ChannelREST Channel = "rest"
)

// DeliveryResult reports the outcome of one delivery attempt.
type DeliveryResult struct {
	DeliveredVia Channel `json:"deliveredVia"`
	Success      bool    `json:"success"`
	Error        error   `json:"-"`
}

// StudentResult is one row of a room's final results.
type StudentResult struct {
	StudentID     string  `json:"studentId"`
	StudentName   string  `json:"studentName"`
	TotalAnswered int     `json:"totalAnswered"`
	TotalCorrect  int     `json:"totalCorrect"`
	Score         float64 `json:"score"`
	AccuracyPct   float64 `json:"accuracyPct"`
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
