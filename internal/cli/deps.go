package cli

import (
	"context"
	"fmt"
	"time"

	"classroom-live/internal/app"
	"classroom-live/internal/config"
	"classroom-live/internal/domain"
	"classroom-live/internal/infra/memory"
	infraredis "classroom-live/internal/infra/redis"
	"classroom-live/internal/transport/rest"
	"classroom-live/internal/transport/stomp"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultAPITimeout     = 10 * time.Second
	defaultSessionTTL     = 10 * time.Minute
	defaultHistoryTTL     = time.Minute
	defaultSnapshotTTL    = time.Hour
)

func newRedisClient(cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func newPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.Postgres.URL == "" {
		return nil, fmt.Errorf("postgres url not configured")
	}
	return pgxpool.Connect(ctx, cfg.Postgres.URL)
}

func newTransportFactory(cfg config.Config, log zerolog.Logger) app.TransportFactory {
	stompCfg := stomp.Config{
		URL:            cfg.Broker.URL,
		Host:           cfg.Broker.Host,
		Login:          cfg.Broker.Login,
		Passcode:       cfg.Broker.Passcode,
		Token:          cfg.API.Token,
		ReconnectDelay: config.Duration(cfg.Broker.ReconnectDelay, defaultReconnectDelay),
		WriteTimeout:   config.Duration(cfg.Broker.WriteTimeout, 0),
	}
	return func(session app.SessionConfig) app.Transport {
		return stomp.NewClient(stompCfg, log.With().Str("room_id", session.RoomID).Logger())
	}
}

func newSessionStore(cfg config.Config, client *redis.Client) app.SessionRepository {
	if client != nil {
		return infraredis.NewSessionStore(client, config.Duration(cfg.Redis.TTL, defaultSessionTTL))
	}
	return memory.NewSessionStore()
}

func newRESTClient(cfg config.Config, log zerolog.Logger) (*rest.Client, error) {
	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("api base url not configured")
	}
	return rest.NewClient(rest.Config{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: config.Duration(cfg.API.Timeout, defaultAPITimeout),
	}, log), nil
}

// newAPIHistory returns the REST history behind a cache: Redis when
// configured, in-process otherwise.
func newAPIHistory(cfg config.Config, client *redis.Client, log zerolog.Logger) (app.AnswerHistory, error) {
	api, err := newRESTClient(cfg, log)
	if err != nil {
		return nil, err
	}
	return cachedHistory(cfg, client, api), nil
}

func cachedHistory(cfg config.Config, client *redis.Client, loader app.AnswerHistory) app.AnswerHistory {
	ttl := config.Duration(cfg.History.TTL, defaultHistoryTTL)
	if client != nil {
		return infraredis.NewHistoryCache(client, loader, ttl)
	}
	return memory.NewHistoryCache(loader, ttl)
}

// waitConnected blocks until session reports CONNECTED, ERROR, or timeout.
func waitConnected(ctx context.Context, session *app.RoomSession, timeout time.Duration) error {
	changes, cancel := session.Changes()
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case state, ok := <-changes:
			if !ok {
				return domain.ErrSessionClosed
			}
			switch state.State {
			case domain.StateConnected:
				return nil
			case domain.StateError:
				if err := session.LastError(); err != nil {
					return err
				}
				return domain.ErrBrokerError
			}
		case <-timer.C:
			return fmt.Errorf("waiting for broker connection: %w", domain.ErrNotConnected)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
