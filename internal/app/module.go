// Package app composes the client with fx: storage, group channel, relay,
// synchronizer, executor, event loop, control socket and terminal UI.
package app

import (
	"context"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/dialog/internal/bus"
	"github.com/matheus3301/dialog/internal/config"
	"github.com/matheus3301/dialog/internal/control"
	"github.com/matheus3301/dialog/internal/executor"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/lock"
	"github.com/matheus3301/dialog/internal/logging"
	"github.com/matheus3301/dialog/internal/loop"
	"github.com/matheus3301/dialog/internal/mls"
	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/relay"
	"github.com/matheus3301/dialog/internal/session"
	"github.com/matheus3301/dialog/internal/status"
	"github.com/matheus3301/dialog/internal/store"
	dsync "github.com/matheus3301/dialog/internal/sync"
	"github.com/matheus3301/dialog/internal/tui"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	Session  string
	Identity *identity.Identity
	Config   *config.Config
	// Headless runs without the terminal UI and also logs to stderr.
	Headless   bool
	SocketPath string // optional override for testing; empty = use default
	LogLevel   string
}

func (p Params) self() identity.PublicKey { return p.Identity.PublicKey() }

// Module returns the fx module for the client, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("dialog",
		fx.Supply(p, &logTap{}),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideChannel,
			provideRelay,
			provideDedup,
			provideReconciler,
			provideSynchronizer,
			provideExecutor,
			provideLoop,
			provideControl,
			provideUI,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params, tap *logTap) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.self()), p.Session,
		logging.Options{Console: p.Headless, Level: p.LogLevel, Hook: tap.hook},
		zap.String("identity", p.self().String()))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.self()); err != nil {
		return nil, err
	}
	logger.Info("acquiring identity lock")
	l, err := lock.Acquire(session.IdentityDir(p.self()))
	if err != nil {
		return nil, err
	}
	logger.Info("identity lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// provideStore takes the lock so the database is never opened unlocked.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.self())
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
	if err := db.BindIdentity(p.self().String()); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideChannel(lc fx.Lifecycle, p Params, _ *lock.Lock, logger *zap.Logger) (mls.Channel, error) {
	ch, closeFn, err := mls.Open(mls.Options{
		Mode:      p.Config.MLS.Mode,
		Identity:  p.Identity,
		StatePath: filepath.Join(session.IdentityDir(p.self()), "mls-state.json"),
		Socket:    p.Config.MLS.SidecarSocket,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("group channel ready", zap.String("mode", string(p.Config.MLS.Mode)))
	lc.Append(fx.StopHook(closeFn))
	return ch, nil
}

func provideRelay(p Params, m *status.Machine, logger *zap.Logger) *relay.Client {
	return relay.New(relay.Options{
		URL:          p.Config.Relay.URL,
		FetchTimeout: p.Config.Relay.FetchTimeout.Duration,
		SendTimeout:  p.Config.Relay.SendTimeout.Duration,
		Status:       m,
		Logger:       logger,
	})
}

func provideDedup(db *store.DB) (*dsync.Dedup, error) {
	return dsync.NewDedup(db)
}

func provideReconciler(db *store.DB, logger *zap.Logger) *dsync.Reconciler {
	return dsync.NewReconciler(db, logger)
}

func provideSynchronizer(p Params, ch mls.Channel, rc *relay.Client, dedup *dsync.Dedup, recon *dsync.Reconciler, b *bus.Bus, logger *zap.Logger) *dsync.Synchronizer {
	return dsync.New(ch, rc, dedup, recon, dsync.Options{
		Self:         p.self(),
		FetchTimeout: p.Config.Relay.FetchTimeout.Duration,
		Bus:          b,
		Logger:       logger,
	})
}

func provideExecutor(p Params, ch mls.Channel, rc *relay.Client, db *store.DB, syn *dsync.Synchronizer, b *bus.Bus, logger *zap.Logger) *executor.Executor {
	return executor.New(executor.Options{
		Identity:     p.Identity,
		Channel:      ch,
		Relay:        rc,
		Store:        db,
		Sync:         syn,
		Bus:          b,
		Logger:       logger,
		FetchTimeout: p.Config.Relay.FetchTimeout.Duration,
	})
}

func provideLoop(p Params, ex *executor.Executor, b *bus.Bus, tap *logTap, logger *zap.Logger) *loop.Loop {
	l := loop.New(loop.Options{
		Executor:        ex,
		Initial:         model.New(p.self()),
		Init:            model.Batch{model.Rehydrate{}, model.ConnectRelay{}, model.FetchPendingInvites{}},
		TickInterval:    p.Config.Loop.TickInterval.Duration,
		FetchInterval:   p.Config.Loop.FetchInterval.Duration,
		InvitePollEvery: p.Config.Loop.InvitePollEvery,
		Bus:             b,
		Logger:          logger,
	})
	tap.attach(l)
	return l
}

func provideControl(p Params, m *status.Machine, db *store.DB, recon *dsync.Reconciler, l *loop.Loop, b *bus.Bus, logger *zap.Logger) (*control.Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.self())
	}
	svc := control.NewService(control.Deps{
		Session:  p.Session,
		Self:     p.self(),
		RelayURL: p.Config.Relay.URL,
		Machine:  m,
		Stats:    db,
		Sync:     recon,
		Loop:     l,
		Bus:      b,
		Logger:   logger,
	})
	return control.Listen(socketPath, svc, logger)
}

// provideUI returns nil when headless.
func provideUI(p Params, l *loop.Loop) *tui.App {
	if p.Headless {
		return nil
	}
	return tui.NewApp(l, p.Session, p.Config.Relay.URL)
}

func registerLifecycle(lc fx.Lifecycle, srv *control.Server, lk *lock.Lock, db *store.DB, rc *relay.Client, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			if err := rc.Close(); err != nil {
				logger.Warn("error closing relay connection", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
