package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Aggregate())

	errs.Add(nil)
	require.NoError(t, errs.Aggregate())

	errs.Add(errors.New("first"), nil)
	require.EqualError(t, errs.Aggregate(), "first")

	errs.Add(errors.New("second"))
	require.Equal(t, "multiple errors:\nfirst\nsecond", errs.Aggregate().Error())
}

func TestRunnerWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunnerWith(ctx)
	r.Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), NamedRun("failing", RunFunc(func(context.Context) error {
		return errors.New("boom")
	})))
	cancel()

	// Canceled runners are a clean stop; only real errors surface.
	require.EqualError(t, r.Wait(), "boom")
}

type closeRecorder struct {
	closed chan struct{}
}

func (c *closeRecorder) Close() error {
	close(c.closed)
	return nil
}

func TestRunWithContextCloserOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &closeRecorder{closed: make(chan struct{})}
	done := make(chan error, 1)
	go func() {
		done <- RunWithContextCloser(ctx, c, func() error {
			// Stands in for a read unblocked only by closing the port.
			<-c.closed
			return errors.New("stream closed")
		})
	}()

	cancel()
	require.Equal(t, context.Canceled, <-done)
}

func TestRunWithContextCloserOnExit(t *testing.T) {
	c := &closeRecorder{closed: make(chan struct{})}
	require.NoError(t, RunWithContextCloser(context.Background(), c, func() error {
		return nil
	}))
	select {
	case <-c.closed:
	default:
		t.Fatal("closer not called after fn exit")
	}
}
