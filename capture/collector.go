package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/phil65/aistack/agent"
)

// ErrStreamInterrupted marks a streaming generation that failed
// mid-flight. The underlying cause is wrapped alongside it. Fragments
// already delivered to the sink are not rolled back.
var ErrStreamInterrupted = errors.New("stream interrupted")

// Collector drives prompt execution against a handle inside a capture
// scope, so the final message always lands in the session store.
type Collector struct {
	bridge *Bridge
}

// NewCollector creates a collector backed by bridge.
func NewCollector(bridge *Bridge) *Collector {
	return &Collector{bridge: bridge}
}

// Stream runs a streaming generation, forwarding each text fragment to
// sink in arrival order. The sink runs on the single consumption path
// and must not block significantly. The handle emits the completed
// message event once streaming finishes, so the final message is in the
// store by the time Stream returns. On cancellation or mid-flight
// failure, listener cleanup runs before the error propagates.
func (c *Collector) Stream(ctx context.Context, id agent.Identity, h agent.Handle, prompt string, sink func(fragment string)) error {
	return c.bridge.WithCapture(id, h, func() error {
		chunks, err := h.Stream(ctx, prompt)
		if err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case chunk, ok := <-chunks:
				if !ok {
					return nil
				}
				if chunk.Err != nil {
					return fmt.Errorf("%w: %w", ErrStreamInterrupted, chunk.Err)
				}
				sink(chunk.Text)
			}
		}
	})
}

// Run is the non-streaming variant: same capture discipline, no sink.
// The returned message is also present in the store.
func (c *Collector) Run(ctx context.Context, id agent.Identity, h agent.Handle, prompt string) (agent.Message, error) {
	var msg agent.Message
	err := c.bridge.WithCapture(id, h, func() error {
		m, err := h.Run(ctx, prompt)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	return msg, err
}
