package rest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"classroom-live/internal/app"
	"classroom-live/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Config points the client at the backend API.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned status %d: %s", e.StatusCode, body)
}

// Client talks to the room REST endpoints.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

var (
	_ app.AnswerHistory = (*Client)(nil)
	_ app.AnswerPoster  = (*Client)(nil)
)

func NewClient(cfg Config, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}
	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	}
	return &Client{
		http: httpClient,
		log:  log.With().Str("component", "rest").Logger(),
	}
}

// FetchRoomAnswers lists the persisted answers of a room. Empty filters are not sent.
func (c *Client) FetchRoomAnswers(ctx context.Context, roomID string, filters domain.AnswerFilters) ([]domain.AnswerRecord, error) {
	if roomID == "" {
		return nil, domain.ErrRoomRequired
	}
	var records []domain.AnswerRecord
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("roomId", roomID).
		SetResult(&records)
	if filters.StudentID != "" {
		req.SetQueryParam("studentId", filters.StudentID)
	}
	if filters.QuestionID != "" {
		req.SetQueryParam("questionId", filters.QuestionID)
	}

	resp, err := req.Get("/rooms/{roomId}/answers")
	if err != nil {
		return nil, fmt.Errorf("fetch answers for room %s: %w", roomID, err)
	}
	if resp.IsError() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	c.log.Debug().Str("room_id", roomID).Int("count", len(records)).Msg("answers fetched")
	return records, nil
}

// SubmitAnswer posts one submission to the room's answers endpoint.
func (c *Client) SubmitAnswer(ctx context.Context, roomID string, submission domain.AnswerSubmission) error {
	if roomID == "" {
		return domain.ErrRoomRequired
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("roomId", roomID).
		SetHeader("Content-Type", "application/json").
		SetBody(submission).
		Post("/rooms/{roomId}/answers")
	if err != nil {
		return fmt.Errorf("post answer for room %s: %w", roomID, err)
	}
	if resp.IsError() {
		return &StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// FetchResults returns the final per-student results of a room.
func (c *Client) FetchResults(ctx context.Context, roomID string) ([]domain.StudentResult, error) {
	if roomID == "" {
		return nil, domain.ErrRoomRequired
	}
	var results []domain.StudentResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("roomId", roomID).
		SetResult(&results).
		Get("/rooms/{roomId}/results")
	if err != nil {
		return nil, fmt.Errorf("fetch results for room %s: %w", roomID, err)
	}
	if resp.IsError() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return results, nil
}

// SaveResults posts the final per-student results of a room.
func (c *Client) SaveResults(ctx context.Context, roomID string, results []domain.StudentResult) error {
	if roomID == "" {
		return domain.ErrRoomRequired
	}
	if results == nil {
		results = []domain.StudentResult{}
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("roomId", roomID).
		SetHeader("Content-Type", "application/json").
		SetBody(results).
		Post("/rooms/{roomId}/results")
	if err != nil {
		return fmt.Errorf("post results for room %s: %w", roomID, err)
	}
	if resp.IsError() {
		return &StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	c.log.Debug().Str("room_id", roomID).Int("count", len(results)).Msg("results saved")
	return nil
}
