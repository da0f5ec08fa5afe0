package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"classroom-live/internal/app"
	"classroom-live/internal/config"
	"classroom-live/internal/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type answerFlags struct {
	roomID       string
	studentID    string
	studentName  string
	questionID   string
	questionText string
	answer       string
	optionID     string
	optionText   string
	gameID       string
	correct      bool
	incorrect    bool
	elapsedMs    int64
	attempt      int
	replace      bool
	rest         bool
	wait         time.Duration
}

// NewAnswerCmd delivers one answer as a student.
func NewAnswerCmd(opts *options) *cobra.Command {
	flags := &answerFlags{}
	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Deliver one answer event to a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.correct && flags.incorrect {
				return fmt.Errorf("--correct and --incorrect are mutually exclusive")
			}
			return runAnswer(cmd.Context(), opts, flags, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags.roomID, "room", "", "room id")
	cmd.Flags().StringVar(&flags.studentID, "student", "", "student id")
	cmd.Flags().StringVar(&flags.studentName, "name", "", "student display name")
	cmd.Flags().StringVar(&flags.questionID, "question", "", "question id")
	cmd.Flags().StringVar(&flags.questionText, "question-text", "", "question text")
	cmd.Flags().StringVar(&flags.answer, "answer", "", "raw answer")
	cmd.Flags().StringVar(&flags.optionID, "option-id", "", "selected option id")
	cmd.Flags().StringVar(&flags.optionText, "option-text", "", "selected option text")
	cmd.Flags().StringVar(&flags.gameID, "game", "", "game activity id")
	cmd.Flags().BoolVar(&flags.correct, "correct", false, "mark the answer correct")
	cmd.Flags().BoolVar(&flags.incorrect, "incorrect", false, "mark the answer incorrect")
	cmd.Flags().Int64Var(&flags.elapsedMs, "elapsed-ms", 0, "time to answer in milliseconds")
	cmd.Flags().IntVar(&flags.attempt, "attempt", 0, "attempt number (defaults to 1)")
	cmd.Flags().BoolVar(&flags.replace, "replace", false, "replace a previous answer to the same question")
	cmd.Flags().BoolVar(&flags.rest, "rest", false, "post over REST instead of the live connection")
	cmd.Flags().DurationVar(&flags.wait, "wait", 10*time.Second, "how long to wait for the live connection")
	_ = cmd.MarkFlagRequired("room")
	_ = cmd.MarkFlagRequired("student")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func (f *answerFlags) submission() domain.AnswerSubmission {
	s := domain.AnswerSubmission{
		StudentID:          f.studentID,
		StudentName:        f.studentName,
		QuestionID:         f.questionID,
		QuestionText:       f.questionText,
		Answer:             f.answer,
		SelectedOptionID:   f.optionID,
		SelectedOptionText: f.optionText,
		GameID:             f.gameID,
		ElapsedMs:          f.elapsedMs,
		Attempt:            f.attempt,
		Replace:            f.replace,
	}
	switch {
	case f.correct:
		s.IsCorrect = domain.Bool(true)
	case f.incorrect:
		s.IsCorrect = domain.Bool(false)
	}
	return s
}

func runAnswer(ctx context.Context, opts *options, flags *answerFlags, out io.Writer) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}

	var result domain.DeliveryResult
	if flags.rest {
		client, err := newRESTClient(cfg, log)
		if err != nil {
			return err
		}
		result = app.NewDeliveryChannel(log).DeliverREST(ctx, flags.roomID, flags.submission(), client)
		if result.Success {
			forgetSharedHistory(ctx, cfg, client, flags.roomID, log)
		}
	} else {
		result, err = deliverLive(ctx, cfg, flags, log)
		if err != nil {
			return err
		}
	}

	if err := writeResult(out, result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("answer not delivered: %w", result.Error)
	}
	return nil
}

func deliverLive(ctx context.Context, cfg config.Config, flags *answerFlags, log zerolog.Logger) (domain.DeliveryResult, error) {
	redisClient := newRedisClient(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}
	service := app.NewLiveService(newSessionStore(cfg, redisClient), newTransportFactory(cfg, log), log)
	defer func() {
		if err := service.Close(); err != nil {
			log.Warn().Err(err).Msg("closing session")
		}
	}()

	name := flags.studentName
	if name == "" {
		name = flags.studentID
	}
	session, err := service.Join(ctx, app.SessionConfig{
		RoomID:   flags.roomID,
		UserID:   flags.studentID,
		UserName: name,
		Role:     domain.RoleStudent,
	})
	if err != nil {
		return domain.DeliveryResult{}, err
	}
	// A delivery attempted before CONNECTED fails with "not connected", so
	// give the broker a chance first; the result still reports the failure.
	if err := waitConnected(ctx, session, flags.wait); err != nil {
		log.Warn().Err(err).Msg("broker connection not ready")
	}
	return service.SubmitAnswer(flags.roomID, flags.studentID, flags.submission()), nil
}

// forgetSharedHistory drops the Redis-cached history of a room after an answer
// was stored through the API. An in-process cache dies with the command.
func forgetSharedHistory(ctx context.Context, cfg config.Config, api app.AnswerHistory, roomID string, log zerolog.Logger) {
	redisClient := newRedisClient(cfg)
	if redisClient == nil {
		return
	}
	defer redisClient.Close()
	fetcher := app.NewHistoryFetcher(cachedHistory(cfg, redisClient, api))
	if err := fetcher.Invalidate(ctx, roomID); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("dropping cached history failed")
	}
}

type deliveryOutput struct {
	DeliveredVia domain.Channel `json:"deliveredVia"`
	Success      bool           `json:"success"`
	Error        string         `json:"error,omitempty"`
}

func writeResult(out io.Writer, result domain.DeliveryResult) error {
	payload := deliveryOutput{DeliveredVia: result.DeliveredVia, Success: result.Success}
	if result.Error != nil {
		payload.Error = result.Error.Error()
	}
	return writeJSON(out, payload)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
