package eventq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrdersByTimeThenSchedule(t *testing.T) {
	q := New()
	var got []string
	q.Schedule(5, func() { got = append(got, "b") })
	q.Schedule(1, func() { got = append(got, "a") })
	q.Schedule(5, func() { got = append(got, "c") })
	q.Schedule(5, func() {
		got = append(got, "d")
		q.Schedule(5, func() { got = append(got, "e") })
	})
	q.Drain()
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
	assert.Equal(t, Tick(5), q.Now())
	assert.Zero(t, q.Pending())
}

func TestQueueRunUntil(t *testing.T) {
	q := New()
	ran := 0
	q.Schedule(3, func() { ran++ })
	q.Schedule(10, func() { ran++ })

	q.RunUntil(7)
	assert.Equal(t, 1, ran)
	assert.Equal(t, Tick(7), q.Now())
	assert.Equal(t, 1, q.Pending())

	assert.Panics(t, func() { q.Schedule(6, func() {}) })
}

func TestQueueExit(t *testing.T) {
	q := New()
	ran := false
	q.Schedule(1, func() { q.ExitSimLoop("done") })
	q.Schedule(2, func() { ran = true })
	q.Drain()

	require.True(t, q.Exited())
	assert.Equal(t, "done", q.ExitReason())
	assert.Equal(t, Tick(1), q.ExitTick())
	assert.False(t, ran)
	assert.False(t, q.Step())
}
