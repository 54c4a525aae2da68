// Package sweep periodically deletes expired auth tokens.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Pruner deletes expired tokens and reports how many went.
type Pruner interface {
	PruneExpiredTokens(ctx context.Context) (int64, error)
}

// Sweeper runs a Pruner on a standard 5-field cron schedule ("@daily" and
// friends also work).
type Sweeper struct {
	cron    *cron.Cron
	pruner  Pruner
	timeout time.Duration
	onPrune func(n int64)
	log     *log.Entry
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New schedules pruner. onPrune may be nil.
func New(schedule string, pruner Pruner, onPrune func(n int64)) (*Sweeper, error) {
	s := &Sweeper{
		cron:    cron.New(cron.WithParser(parser)),
		pruner:  pruner,
		timeout: time.Minute,
		onPrune: onPrune,
		log:     log.WithField("component", "sweep"),
	}
	if _, err := s.cron.AddFunc(schedule, func() { _, _ = s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("token sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or ctx
// to end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce prunes immediately.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.pruner.PruneExpiredTokens(ctx)
	if err != nil {
		s.log.WithError(err).Error("token sweep failed")
		return 0, err
	}
	if s.onPrune != nil {
		s.onPrune(n)
	}
	if n > 0 {
		s.log.WithField("removed", n).Info("expired tokens removed")
	}
	return n, nil
}
