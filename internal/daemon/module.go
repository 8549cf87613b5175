package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/api"
	"github.com/matheus3301/msgr/internal/auth"
	"github.com/matheus3301/msgr/internal/backend"
	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/config"
	"github.com/matheus3301/msgr/internal/dispatch"
	"github.com/matheus3301/msgr/internal/history"
	"github.com/matheus3301/msgr/internal/lock"
	"github.com/matheus3301/msgr/internal/logging"
	"github.com/matheus3301/msgr/internal/messenger"
	"github.com/matheus3301/msgr/internal/persist"
	"github.com/matheus3301/msgr/internal/presence"
	"github.com/matheus3301/msgr/internal/reconcile"
	"github.com/matheus3301/msgr/internal/session"
	"github.com/matheus3301/msgr/internal/status"
	"github.com/matheus3301/msgr/internal/store"
	"github.com/matheus3301/msgr/internal/transport"
)

// restoreWindow is how many cached messages per chat are restored at start.
const restoreWindow = 200

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load the global config file
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideCredentials,
			provideBackend,
			provideEngine,
			provideTransport,
			provideHistory,
			providePoller,
			provideDispatcher,
			provideWriter,
			provideMessenger,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config.WithDefaults(), nil
	}
	return config.LoadOrDefault(session.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

// provideLock takes the credentials so a session without them fails before
// the lock file is written.
func provideLock(p Params, _ *auth.Credentials, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), "msgrd")
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore takes the lock so two daemons never share a cache.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCredentials(p Params) (*auth.Credentials, error) {
	creds, err := auth.LoadValid(session.CredentialsPath(p.SessionName), time.Now())
	if errors.Is(err, auth.ErrNoCredentials) || errors.Is(err, auth.ErrExpired) {
		return nil, fmt.Errorf("session %q: %w; run `msgrctl register` first", p.SessionName, err)
	}
	return creds, err
}

func provideBackend(cfg *config.Config, creds *auth.Credentials, logger *zap.Logger) *backend.Client {
	c := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout.Duration, logger.Named("backend"))
	c.SetToken(creds.Token)
	return c
}

func provideEngine(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *reconcile.Engine {
	return reconcile.New(b, logger.Named("engine"), reconcile.Options{TypingExpiry: cfg.Typing.Expiry.Duration})
}

func provideTransport(cfg *config.Config, creds *auth.Credentials, be *backend.Client, b *bus.Bus, m *status.Machine, logger *zap.Logger) *transport.Client {
	return transport.New(transport.Config{
		StreamURL:  cfg.Backend.StreamURL,
		RetryDelay: cfg.Realtime.RetryDelay.Duration,
		UserID:     creds.User.ID,
	}, be, be, b, m, logger.Named("transport"))
}

func provideHistory(be *backend.Client, eng *reconcile.Engine, tr *transport.Client, logger *zap.Logger) *history.Loader {
	return history.New(be, eng, tr, logger.Named("history"))
}

func providePoller(cfg *config.Config, be *backend.Client, eng *reconcile.Engine, logger *zap.Logger) *presence.Poller {
	return presence.New(be, eng, cfg.Presence.Interval.Duration, logger.Named("presence"))
}

func provideDispatcher(be *backend.Client, eng *reconcile.Engine, tr *transport.Client, db *store.DB, b *bus.Bus, logger *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(be, eng, tr, db, b, logger.Named("dispatch"))
}

func provideWriter(db *store.DB, b *bus.Bus, logger *zap.Logger) *persist.Writer {
	return persist.NewWriter(db, b, logger.Named("persist"))
}

func provideMessenger(
	eng *reconcile.Engine,
	tr *transport.Client,
	hl *history.Loader,
	poller *presence.Poller,
	d *dispatch.Dispatcher,
	db *store.DB,
	b *bus.Bus,
	logger *zap.Logger,
) *messenger.Messenger {
	return messenger.New(messenger.Deps{
		Engine:      eng,
		Transport:   tr,
		History:     hl,
		Poller:      poller,
		Dispatcher:  d,
		Search:      db,
		Checkpoints: persist.NewCheckpoints(db),
		Bus:         b,
		Logger:      logger,
	})
}

func provideService(p Params, m *messenger.Messenger, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(p.SessionName, m, b, logger.Named("api"))
}

func registerLifecycle(
	lc fx.Lifecycle,
	cfg *config.Config,
	creds *auth.Credentials,
	srv *Server,
	lk *lock.Lock,
	db *store.DB,
	writer *persist.Writer,
	m *messenger.Messenger,
	logger *zap.Logger,
) {
	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			m.SetUser(creds.User)

			// Seed before the writer starts so the cache is not rewritten
			// with its own contents.
			res, err := persist.Restore(db, m.Engine(), creds.User, restoreWindow)
			if err != nil {
				logger.Warn("cache restore failed", zap.Error(err))
			} else {
				logger.Info("cache restored",
					zap.Int("chats", res.Chats),
					zap.Int("messages", res.Messages),
					zap.Int("undelivered", res.Undelivered),
				)
			}
			writer.Start(ctx)

			cp := persist.NewCheckpoints(db)
			realtime, err := cp.Realtime(cfg.Realtime.Enabled)
			if err != nil {
				logger.Warn("read realtime checkpoint failed", zap.Error(err))
			}
			selected, err := cp.SelectedChat()
			if err != nil {
				logger.Warn("read selection checkpoint failed", zap.Error(err))
			}

			m.Start(ctx, realtime)

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := m.Bootstrap(ctx, selected); err != nil {
					logger.Warn("bootstrap incomplete", zap.Error(err))
					return
				}
				logger.Info("initial load complete")
			}()

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			cancel()
			wg.Wait()
			m.Stop()
			writer.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
