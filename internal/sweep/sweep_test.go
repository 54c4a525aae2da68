package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPruner struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (p *countingPruner) PruneExpiredTokens(context.Context) (int64, error) {
	p.calls.Add(1)
	return p.n, p.err
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, err := New("every day", &countingPruner{}, nil)
	assert.Error(t, err)

	_, err = New("*/5 * * * * *", &countingPruner{}, nil)
	assert.Error(t, err, "six-field expressions are not accepted")
}

func TestRunOnce_ReportsPruned(t *testing.T) {
	p := &countingPruner{n: 4}
	var reported int64
	s, err := New("0 3 * * *", p, func(n int64) { reported = n })
	require.NoError(t, err)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, int64(4), reported)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestRunOnce_Error(t *testing.T) {
	p := &countingPruner{err: errors.New("locked")}
	called := false
	s, err := New("0 3 * * *", p, func(int64) { called = true })
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.Error(t, err)
	assert.False(t, called)
}

func TestStartStop(t *testing.T) {
	s, err := New("0 3 * * *", &countingPruner{}, nil)
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.NoError(t, ctx.Err())
}
