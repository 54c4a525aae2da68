// Package deploy runs the redeploy script triggered by a push webhook.
package deploy

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// waitDelay bounds how long output pipes are drained after a kill.
const waitDelay = time.Second

// Runner executes `bash <Script>` and, once it succeeds, starts Refresh in
// the background.
type Runner struct {
	Script  string
	Refresh string
	Timeout time.Duration
	Dir     string

	mu  sync.Mutex
	wg  sync.WaitGroup
	log *log.Entry
}

func NewRunner(script, refresh string, timeout time.Duration) *Runner {
	return &Runner{
		Script:  script,
		Refresh: refresh,
		Timeout: timeout,
		log:     log.WithField("component", "deploy"),
	}
}

// Deploy runs the script and returns its combined output. Concurrent calls
// are serialized so two pushes never run the script at once.
func (r *Runner) Deploy(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, "bash", r.Script)
	cmd.Dir = r.Dir
	cmd.WaitDelay = waitDelay
	output, err := cmd.CombinedOutput()
	if err != nil {
		r.logger().WithError(err).WithField("script", r.Script).Error("deploy script failed")
		return string(output), fmt.Errorf("deploy script %s: %s: %w", r.Script, strings.TrimSpace(string(output)), err)
	}
	r.logger().WithFields(log.Fields{
		"script":   r.Script,
		"duration": time.Since(start).String(),
	}).Info("deploy script finished")

	r.startRefresh()
	return string(output), nil
}

// Wait blocks until background refreshes have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) startRefresh() {
	args := strings.Fields(r.Refresh)
	if len(args) == 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx := context.Background()
		if r.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.Timeout)
			defer cancel()
		}
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		cmd.Dir = r.Dir
		cmd.WaitDelay = waitDelay
		if out, err := cmd.CombinedOutput(); err != nil {
			r.logger().WithError(err).WithField("output", strings.TrimSpace(string(out))).Warn("refresh command failed")
			return
		}
		r.logger().WithField("command", r.Refresh).Info("refresh command finished")
	}()
}

func (r *Runner) logger() *log.Entry {
	if r.log == nil {
		r.log = log.WithField("component", "deploy")
	}
	return r.log
}
