package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil65/aistack/agent"
	"github.com/phil65/aistack/agent/agenttest"
	"github.com/phil65/aistack/session"
)

func newCollector(store *session.Store) *Collector {
	return NewCollector(NewBridge(store))
}

func TestStream_ReconstructionMatchesLog(t *testing.T) {
	store := session.NewStore()
	collector := newCollector(store)
	h := agenttest.New("dieter", "The ", "answer ", "is ", "42.")

	var got []string
	err := collector.Stream(t.Context(), "dieter", h, "question", func(fragment string) {
		got = append(got, fragment)
	})
	require.NoError(t, err)

	// Fragments arrive in order; their concatenation equals the content
	// of the message that ended up in the log.
	assert.Equal(t, []string{"The ", "answer ", "is ", "42."}, got)

	msgs := store.Messages("dieter")
	require.Len(t, msgs, 2)
	assert.Equal(t, strings.Join(got, ""), msgs[1].Content)
	assert.Equal(t, 0, h.ListenerCount())
}

func TestStream_MidFlightFailure(t *testing.T) {
	store := session.NewStore()
	collector := newCollector(store)
	h := agenttest.New("dieter", "partial ", "content ", "never sent")
	h.StreamErr = errors.New("connection reset")
	h.FailAfter = 2

	var got strings.Builder
	err := collector.Stream(t.Context(), "dieter", h, "question", func(fragment string) {
		got.WriteString(fragment)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStreamInterrupted)
	assert.ErrorContains(t, err, "connection reset")

	// Partial fragments were delivered and are not rolled back.
	assert.Equal(t, "partial content ", got.String())

	// No final assistant message was emitted, so only the user prompt is
	// in the log; listeners are gone either way.
	msgs := store.Messages("dieter")
	require.Len(t, msgs, 1)
	assert.Equal(t, agent.RoleUser, msgs[0].Role)
	assert.Equal(t, 0, h.ListenerCount())
}

func TestStream_CancellationRunsCleanup(t *testing.T) {
	store := session.NewStore()
	collector := newCollector(store)
	h := agenttest.New("dieter", "a", "b", "c")
	h.Release = make(chan struct{}) // hold the stream open after fragments

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() {
		done <- collector.Stream(ctx, "dieter", h, "question", func(string) {})
	}()

	// Let the fragments drain, then cancel mid-call.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("stream did not return after cancellation")
	}
	assert.Equal(t, 0, h.ListenerCount())
}

func TestStream_ConcurrentAgentsAreIsolated(t *testing.T) {
	store := session.NewStore()
	collector := newCollector(store)
	h1 := agenttest.New("dieter", "dieter says hi")
	h2 := agenttest.New("uschi", "uschi says hi")

	var wg sync.WaitGroup
	wg.Add(2)
	var err1, err2 error
	go func() {
		defer wg.Done()
		err1 = collector.Stream(t.Context(), "dieter", h1, "hello", func(string) {})
	}()
	go func() {
		defer wg.Done()
		err2 = collector.Stream(t.Context(), "uschi", h2, "hello", func(string) {})
	}()
	wg.Wait()

	require.NoError(t, err1)
	require.NoError(t, err2)

	for _, m := range store.Messages("dieter") {
		assert.NotContains(t, m.Content, "uschi")
	}
	for _, m := range store.Messages("uschi") {
		assert.NotContains(t, m.Content, "dieter")
	}
}

func TestStream_SecondCallWhileInFlight(t *testing.T) {
	store := session.NewStore()
	collector := newCollector(store)
	h := agenttest.New("dieter", "slow ", "answer")
	h.Release = make(chan struct{})

	first := make(chan error, 1)
	var got strings.Builder
	go func() {
		first <- collector.Stream(t.Context(), "dieter", h, "question", func(f string) {
			got.WriteString(f)
		})
	}()

	// Wait until the first call is in flight, then try a second one.
	require.Eventually(t, func() bool { return h.ListenerCount() == 3 },
		time.Second, time.Millisecond)

	err := collector.Stream(t.Context(), "dieter", h, "again", func(string) {})
	assert.ErrorIs(t, err, ErrAlreadyCapturing)

	// Releasing the first call lets it finish uncorrupted.
	close(h.Release)
	require.NoError(t, <-first)
	assert.Equal(t, "slow answer", got.String())

	msgs := store.Messages("dieter")
	require.NotEmpty(t, msgs)
	assert.Equal(t, "slow answer", msgs[len(msgs)-1].Content)
}

func TestRun_ReturnsFinalMessageAlsoInLog(t *testing.T) {
	store := session.NewStore()
	collector := newCollector(store)
	h := agenttest.New("dieter", "direct answer")

	msg, err := collector.Run(t.Context(), "dieter", h, "question")
	require.NoError(t, err)
	assert.Equal(t, "direct answer", msg.Content)
	assert.Equal(t, agent.RoleAssistant, msg.Role)

	msgs := store.Messages("dieter")
	require.Len(t, msgs, 2)
	assert.True(t, msg.Equivalent(msgs[1]))
	assert.Equal(t, 0, h.ListenerCount())
}

func TestRun_ErrorPropagatesAfterCleanup(t *testing.T) {
	store := session.NewStore()
	collector := newCollector(store)
	h := agenttest.New("dieter")
	h.RunErr = errors.New("model overloaded")

	_, err := collector.Run(t.Context(), "dieter", h, "question")
	assert.ErrorContains(t, err, "model overloaded")
	assert.Equal(t, 0, h.ListenerCount())
	assert.Equal(t, 0, store.Len("dieter"))
}
