package cli

import (
	"context"
	"fmt"
	"io"

	"classroom-live/internal/app"
	"classroom-live/internal/domain"
	"classroom-live/internal/infra/postgres"
	"github.com/spf13/cobra"
)

type historyFlags struct {
	roomID     string
	studentID  string
	questionID string
	source     string
}

// NewHistoryCmd prints the normalized answer history of a room.
func NewHistoryCmd(opts *options) *cobra.Command {
	flags := &historyFlags{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the answer history of a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), opts, flags, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags.roomID, "room", "", "room id")
	cmd.Flags().StringVar(&flags.studentID, "student", "", "only this student's answers")
	cmd.Flags().StringVar(&flags.questionID, "question", "", "only answers to this question")
	cmd.Flags().StringVar(&flags.source, "source", "api", "history source: api or archive")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func runHistory(ctx context.Context, opts *options, flags *historyFlags, out io.Writer) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}

	var history app.AnswerHistory
	switch flags.source {
	case "api":
		redisClient := newRedisClient(cfg)
		if redisClient != nil {
			defer redisClient.Close()
		}
		history, err = newAPIHistory(cfg, redisClient, log)
		if err != nil {
			return err
		}
	case "archive":
		pool, err := newPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		history = postgres.NewAnswerArchive(pool)
	default:
		return fmt.Errorf("unknown history source %q", flags.source)
	}

	views, err := app.NewHistoryFetcher(history).Prefetch(ctx, flags.roomID, domain.AnswerFilters{
		StudentID:  flags.studentID,
		QuestionID: flags.questionID,
	})
	if err != nil {
		return err
	}
	if views == nil {
		views = []domain.AnswerViewModel{}
	}
	return writeJSON(out, views)
}
