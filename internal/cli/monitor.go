package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"classroom-live/internal/app"
	"classroom-live/internal/config"
	"classroom-live/internal/domain"
	"classroom-live/internal/infra/postgres"
	infraredis "classroom-live/internal/infra/redis"
	transport "classroom-live/internal/transport/http"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type monitorFlags struct {
	rooms    []string
	userID   string
	name     string
	teacher  bool
	start    bool
	prefetch bool
	listen   string
	wait     time.Duration
}

// NewMonitorCmd joins one or more rooms and serves their live state over HTTP.
func NewMonitorCmd(opts *options) *cobra.Command {
	flags := &monitorFlags{}
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Join rooms and monitor answers and snapshots live",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd.Context(), opts, flags)
		},
	}
	cmd.Flags().StringSliceVar(&flags.rooms, "room", nil, "room id to monitor (repeatable)")
	cmd.Flags().StringVar(&flags.userID, "user", "", "user id announced on join")
	cmd.Flags().StringVar(&flags.name, "name", "", "display name announced on join")
	cmd.Flags().BoolVar(&flags.teacher, "teacher", false, "join as the room's teacher")
	cmd.Flags().BoolVar(&flags.start, "start", false, "start the activity once connected (teacher only)")
	cmd.Flags().BoolVar(&flags.prefetch, "prefetch", false, "load answer history from the API before streaming")
	cmd.Flags().StringVar(&flags.listen, "listen", ":8081", "address of the monitor HTTP server")
	cmd.Flags().DurationVar(&flags.wait, "wait", 15*time.Second, "how long --start waits for the connection")
	_ = cmd.MarkFlagRequired("room")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runMonitor(ctx context.Context, opts *options, flags *monitorFlags) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := newRedisClient(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var archive *postgres.AnswerArchive
	if cfg.Postgres.URL != "" {
		pool, err := newPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		archive = postgres.NewAnswerArchive(pool)
	}

	var snapshots *infraredis.SnapshotStore
	var handler *transport.MonitorHandler
	if redisClient != nil {
		snapshots = infraredis.NewSnapshotStore(redisClient, config.Duration(cfg.Snapshot.TTL, defaultSnapshotTTL))
		handler = transport.NewMonitorHandler(snapshots, log)
	} else {
		handler = transport.NewMonitorHandler(nil, log)
	}

	var fetcher *app.HistoryFetcher
	if flags.prefetch {
		history, err := newAPIHistory(cfg, redisClient, log)
		if err != nil {
			return err
		}
		fetcher = app.NewHistoryFetcher(history)
	}

	role := domain.RoleStudent
	if flags.teacher {
		role = domain.RoleTeacher
	}
	name := flags.name
	if name == "" {
		name = flags.userID
	}

	store := newSessionStore(cfg, redisClient)
	service := app.NewLiveService(store, newTransportFactory(cfg, log), log)
	defer func() {
		if err := service.Close(); err != nil {
			log.Warn().Err(err).Msg("closing sessions")
		}
	}()

	for _, roomID := range flags.rooms {
		session, err := service.Join(ctx, app.SessionConfig{
			RoomID:   roomID,
			UserID:   flags.userID,
			UserName: name,
			Role:     role,
		})
		if err != nil {
			return err
		}
		roomLog := log.With().Str("room_id", roomID).Logger()

		monitor := app.NewMonitoringAggregator(session, log)
		monitor.Attach()
		defer monitor.Detach()

		if snapshots != nil {
			wireSnapshotStore(ctx, monitor, snapshots, roomID, roomLog)
		}
		if archive != nil {
			session.OnAnswer(func(view domain.AnswerViewModel) {
				saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := archive.Save(saveCtx, view); err != nil {
					roomLog.Error().Err(err).Msg("archiving answer failed")
				}
			})
		}
		if fetcher != nil {
			// Keep the cached history in step with what arrives live.
			session.OnAnswer(func(domain.AnswerViewModel) {
				invCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := fetcher.Invalidate(invCtx, roomID); err != nil {
					roomLog.Warn().Err(err).Msg("dropping cached history failed")
				}
			})
			n, err := fetcher.PrefetchInto(ctx, session, domain.AnswerFilters{})
			if err != nil {
				roomLog.Warn().Err(err).Msg("history prefetch failed")
			} else {
				roomLog.Info().Int("answers", n).Msg("history prefetched")
			}
		}
		if flags.start {
			go startWhenConnected(ctx, session, flags.wait, roomLog)
		}
		go logRoomChanges(ctx, session, roomLog)

		handler.Register(roomID, transport.RoomView{Session: session, Monitor: monitor})
	}

	if touch, ok := store.(*infraredis.SessionStore); ok {
		go keepSessionsAlive(ctx, touch, log)
	}

	server := &http.Server{
		Addr:         flags.listen,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", flags.listen).Strs("rooms", handler.RoomIDs()).Msg("monitor listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("monitor server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down monitor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// wireSnapshotStore hydrates the aggregator from the last stored snapshot and
// persists every pushed one.
func wireSnapshotStore(ctx context.Context, monitor *app.MonitoringAggregator, store *infraredis.SnapshotStore, roomID string, log zerolog.Logger) {
	snap, err := store.Latest(ctx, roomID)
	switch {
	case err == nil:
		monitor.Hydrate(snap)
	case !errors.Is(err, domain.ErrSnapshotNotFound):
		log.Warn().Err(err).Msg("loading stored snapshot failed")
	}
	monitor.OnSnapshot(func(snap domain.RoomMonitoringSnapshotDto) {
		saveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := store.Save(saveCtx, snap); err != nil {
			log.Warn().Err(err).Msg("storing snapshot failed")
		}
	})
}

func startWhenConnected(ctx context.Context, session *app.RoomSession, wait time.Duration, log zerolog.Logger) {
	if err := waitConnected(ctx, session, wait); err != nil {
		log.Error().Err(err).Msg("activity not started")
		return
	}
	started, err := session.StartActivity()
	switch {
	case err != nil:
		log.Error().Err(err).Msg("activity not started")
	case !started:
		log.Warn().Msg("only a connected teacher can start the activity")
	}
}

func logRoomChanges(ctx context.Context, session *app.RoomSession, log zerolog.Logger) {
	changes, cancel := session.Changes()
	defer cancel()
	var last domain.RoomState
	for {
		select {
		case state, ok := <-changes:
			if !ok {
				return
			}
			if state.State != last.State {
				log.Info().Str("state", string(state.State)).Msg("connection state")
			}
			if len(state.Answers) != len(last.Answers) {
				log.Info().Int("answers", len(state.Answers)).Int("users", len(state.Users)).Msg("room updated")
			}
			last = state
		case <-ctx.Done():
			return
		}
	}
}

func keepSessionsAlive(ctx context.Context, store *infraredis.SessionStore, log zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := store.Touch(ctx); err != nil {
				log.Warn().Err(err).Msg("refreshing session markers failed")
			}
		case <-ctx.Done():
			return
		}
	}
}
