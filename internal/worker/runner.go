package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Loop is a named background job.
type Loop struct {
	Name string
	// Run blocks until ctx is done.
	Run func(ctx context.Context)
	// Once performs a single pass.
	Once func(ctx context.Context) error
}

// Runner starts a set of loops and waits for them.
type Runner struct {
	loops  []Loop
	logger *zap.Logger
}

// NewRunner creates a runner over loops.
func NewRunner(logger *zap.Logger, loops ...Loop) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{loops: loops, logger: logger}
}

// Names lists the loops in registration order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.loops))
	for _, l := range r.loops {
		names = append(names, l.Name)
	}
	return names
}

// Select returns a runner limited to the named loops. An empty list keeps all of them.
func (r *Runner) Select(names []string) (*Runner, error) {
	if len(names) == 0 {
		return r, nil
	}
	byName := make(map[string]Loop, len(r.loops))
	for _, l := range r.loops {
		byName[l.Name] = l
	}
	out := &Runner{logger: r.logger}
	for _, n := range names {
		n = strings.TrimSpace(n)
		l, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown job %q (have %s)", n, strings.Join(r.Names(), ", "))
		}
		out.loops = append(out.loops, l)
	}
	return out, nil
}

// Run starts every loop and blocks until all of them return.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, l := range r.loops {
		wg.Add(1)
		go func(l Loop) {
			defer wg.Done()
			r.logger.Info("job loop started", zap.String("job", l.Name))
			l.Run(ctx)
			r.logger.Info("job loop stopped", zap.String("job", l.Name))
		}(l)
	}
	wg.Wait()
}

// RunOnce runs one pass of every loop in order. A failing loop does not stop the others.
func (r *Runner) RunOnce(ctx context.Context) error {
	var errs []error
	for _, l := range r.loops {
		if err := l.Once(ctx); err != nil {
			r.logger.Error("job pass failed", zap.String("job", l.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", l.Name, err))
			continue
		}
		r.logger.Info("job pass completed", zap.String("job", l.Name))
	}
	return errors.Join(errs...)
}
