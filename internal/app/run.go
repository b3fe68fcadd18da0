package app

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/matheus3301/dialog/internal/loop"
	"github.com/matheus3301/dialog/internal/tui"
)

// Run starts the client and blocks until the user quits, the UI stops or
// ctx ends. Cancellation is a clean shutdown and returns nil.
func Run(ctx context.Context, p Params) (err error) {
	var (
		l  *loop.Loop
		ui *tui.App
	)
	app := fx.New(
		Module(p),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Populate(&l, &ui),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		err = multierr.Append(err, app.Stop(stopCtx))
	}()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- l.Run(runCtx) }()

	if ui == nil {
		return clean(<-loopDone)
	}

	uiDone := make(chan error, 1)
	go func() { uiDone <- ui.Run() }()
	select {
	case lerr := <-loopDone:
		ui.Stop()
		return multierr.Append(clean(lerr), <-uiDone)
	case uerr := <-uiDone:
		stop()
		return multierr.Append(uerr, clean(<-loopDone))
	}
}

func clean(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
