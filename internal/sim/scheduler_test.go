package sim

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerFiresInTimeOrder(t *testing.T) {
	s := NewScheduler(discardLogger())
	var got []float64
	for _, d := range []float64{5, 1, 3, 0} {
		s.After(d, func() { got = append(got, s.Now()) })
	}
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []float64{0, 1, 3, 5}, got)
	assert.Equal(t, 0, s.Pending())
	assert.EqualValues(t, 4, s.Processed())
}

func TestSchedulerBreaksTiesByRegistrationOrder(t *testing.T) {
	s := NewScheduler(discardLogger())
	var got []string
	s.After(2, func() { got = append(got, "a") })
	s.After(2, func() { got = append(got, "b") })
	s.After(1, func() {
		got = append(got, "c")
		s.After(1, func() { got = append(got, "d") })
	})
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"c", "a", "b", "d"}, got)
}

func TestSchedulerStopsOnCancelledContext(t *testing.T) {
	s := NewScheduler(discardLogger())
	s.After(1, func() {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
	assert.Equal(t, 1, s.Pending())
}

func TestSchedulerRejectsNegativeDelay(t *testing.T) {
	s := NewScheduler(discardLogger())
	assert.Panics(t, func() { s.After(-1, func() {}) })
}
