package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"classroom-live/internal/domain"
	"github.com/spf13/cobra"
)

type resultsFlags struct {
	roomID string
	save   string
}

// NewResultsCmd prints the final results of a room, or stores them with --save.
func NewResultsCmd(opts *options) *cobra.Command {
	flags := &resultsFlags{}
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print or save the per-student results of a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(cmd.Context(), opts, flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags.roomID, "room", "", "room id")
	cmd.Flags().StringVar(&flags.save, "save", "", "post results read from this JSON file (- for stdin)")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func runResults(ctx context.Context, opts *options, flags *resultsFlags, in io.Reader, out io.Writer) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	client, err := newRESTClient(cfg, log)
	if err != nil {
		return err
	}

	if flags.save != "" {
		results, err := readResults(flags.save, in)
		if err != nil {
			return err
		}
		if err := client.SaveResults(ctx, flags.roomID, results); err != nil {
			return err
		}
		log.Info().Str("room_id", flags.roomID).Int("students", len(results)).Msg("results saved")
		return writeJSON(out, results)
	}

	results, err := client.FetchResults(ctx, flags.roomID)
	if err != nil {
		return err
	}
	return writeJSON(out, results)
}

func readResults(path string, stdin io.Reader) ([]domain.StudentResult, error) {
	in := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open results: %w", err)
		}
		defer f.Close()
		in = f
	}
	var results []domain.StudentResult
	if err := json.NewDecoder(in).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return results, nil
}
