package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-board/board"
	"prism-board/config"
	"prism-board/storage"
)

// newLogger builds the process logger. Diagnostics go to stderr so command
// output stays clean.
func newLogger(cfg *config.Config) *log.Logger {
	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// openStore builds the key-value backend selected by cfg. The returned
// function releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (storage.KV, func(), error) {
	noop := func() {}
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("memory storage selected, the board is lost on exit")
		return storage.NewMemoryStore(), noop, nil
	case config.StorageFile:
		fs, err := storage.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("file storage: %w", err)
		}
		logger.WithField("dir", fs.Dir()).Debug("using file storage")
		return fs, noop, nil
	case config.StorageRedis:
		rs := storage.NewRedisStore(redis.NewClient(storage.RedisOptions(cfg.RedisConn)))
		return rs, func() { _ = rs.Close() }, nil
	case config.StorageTable:
		ts, err := storage.NewTableStore(cfg.TableConn, cfg.TableName)
		if err != nil {
			return nil, nil, fmt.Errorf("table storage: %w", err)
		}
		initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := ts.EnsureTable(initCtx); err != nil {
			return nil, nil, fmt.Errorf("create table %s: %w", cfg.TableName, err)
		}
		if cfg.RedisConn == "" || cfg.CacheTTL == 0 {
			return ts, noop, nil
		}
		client := redis.NewClient(storage.RedisOptions(cfg.RedisConn))
		logger.WithField("ttl", cfg.CacheTTL).Debug("caching table snapshots in redis")
		return storage.NewCachedStore(ts, client, cfg.CacheTTL), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage %q", cfg.Storage)
	}
}

// session is an opened board with everything needed to tear it down.
type session struct {
	cfg     *config.Config
	logger  *log.Logger
	svc     *board.Service
	ctrl    *board.Controller
	closers []func(context.Context) error
}

func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	logger := newLogger(cfg)
	s := &session{cfg: cfg, logger: logger}
	s.closers = append(s.closers, setupTracing(logger))

	kv, release, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = s.close(ctx)
		return nil, err
	}
	s.closers = append(s.closers, func(context.Context) error { release(); return nil })

	svc, err := board.Open(ctx, kv, board.WithKey(cfg.SnapshotKey), board.WithLogger(logger))
	if err != nil {
		_ = s.close(ctx)
		return nil, err
	}
	s.svc = svc
	s.ctrl = board.NewController(svc)
	s.closers = append(s.closers, svc.Close)
	return s, nil
}

// close runs the teardown steps in reverse order and returns the first error.
func (s *session) close(ctx context.Context) error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
