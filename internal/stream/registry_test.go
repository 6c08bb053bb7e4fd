package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id        string
	cancelled atomic.Int32
	done      chan struct{}
	// stuck handles ignore Cancel
	stuck bool
}

func newFakeHandle(id string) *fakeHandle {
	return &fakeHandle{id: id, done: make(chan struct{})}
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Cancel() {
	if h.cancelled.Add(1) == 1 && !h.stuck {
		close(h.done)
	}
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	a, b := newFakeHandle("a"), newFakeHandle("b")

	assert.True(t, r.Add(a))
	assert.True(t, r.Add(b))
	assert.Equal(t, 2, r.Len())

	r.Remove("a")
	r.Remove("missing")
	assert.Equal(t, 1, r.Len())
	assert.Zero(t, a.cancelled.Load())
}

func TestRegistryCancelAll(t *testing.T) {
	r := NewRegistry()
	a, b := newFakeHandle("a"), newFakeHandle("b")
	r.Add(a)
	r.Add(b)

	require.NoError(t, r.CancelAll(context.Background()))
	assert.Equal(t, int32(1), a.cancelled.Load())
	assert.Equal(t, int32(1), b.cancelled.Load())

	late := newFakeHandle("late")
	assert.False(t, r.Add(late))
	assert.Equal(t, int32(1), late.cancelled.Load())
}

func TestRegistryCancelAllTimesOut(t *testing.T) {
	r := NewRegistry()
	h := newFakeHandle("stuck")
	h.stuck = true
	r.Add(h)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.CancelAll(ctx), context.DeadlineExceeded)
}

func TestRegistryCancelsRealSessions(t *testing.T) {
	r := NewRegistry()
	p := &switchableProvider[statsSnap]{}
	p.set(statsSnap{Users: 1}, nil)
	tr := newRecordingTransport()
	s := NewSession[statsSnap](context.Background(), Subject{UserID: 1}, p, NewEncodedDetector[statsSnap](), tr, Options{
		PollInterval:      time.Hour,
		HeartbeatInterval: time.Hour,
	})
	require.NoError(t, s.Open())
	require.True(t, r.Add(s))
	errc := make(chan error, 1)
	go func() { errc <- s.Run() }()

	require.NoError(t, r.CancelAll(context.Background()))
	assert.NoError(t, <-errc)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, tr.closeCount())
}
