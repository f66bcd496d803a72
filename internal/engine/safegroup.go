package engine

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/plamolinux/pkgbuild/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// SafeGroup wraps errgroup.Group and turns panics in its goroutines into
// errors
type SafeGroup struct {
	group  *errgroup.Group
	logger logger.Logger
}

// NewSafeGroup creates a SafeGroup whose context is cancelled when the
// first goroutine fails
func NewSafeGroup(ctx context.Context, log logger.Logger) (*SafeGroup, context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	return &SafeGroup{
		group:  g,
		logger: log,
	}, ctx
}

// Go runs fn in a new goroutine. A panic is logged with its stack trace
// and returned as an error.
func (sg *SafeGroup) Go(fn func() error) {
	sg.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				sg.logger.Error("Goroutine panic recovered",
					logger.WithField("panic", r),
					logger.WithField("stack_trace", string(debug.Stack())))
				err = fmt.Errorf("goroutine panic: %v", r)
			}
		}()

		return fn()
	})
}

// SetLimit sets the maximum number of concurrent goroutines
func (sg *SafeGroup) SetLimit(n int) {
	sg.group.SetLimit(n)
}

// Wait blocks until every goroutine has returned and returns the first
// error
func (sg *SafeGroup) Wait() error {
	return sg.group.Wait()
}

// Execute runs o until it finishes or a signal arrives on sigs. A signal
// cancels the run context, so the job in flight has its subprocess killed
// and the run ends with a FatalError.
func Execute(ctx context.Context, o *Orchestrator, sigs <-chan os.Signal, log logger.Logger) (*Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := NewSafeGroup(ctx, log)

	g.Go(func() error {
		select {
		case sig := <-sigs:
			log.Warn(fmt.Sprintf("Received %s, aborting run", sig))
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	var report *Report
	g.Go(func() error {
		defer cancel()
		var err error
		report, err = o.Run(gctx)
		return err
	})

	err := g.Wait()
	return report, err
}
