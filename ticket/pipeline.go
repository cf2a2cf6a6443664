package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phil65/aistack/agent"
)

// ErrEmptyHistory is returned when extraction is requested on a log with
// no messages. The extractor is never invoked in that case.
var ErrEmptyHistory = errors.New("chat history is empty")

// ValidationError reports that the extractor produced output that does
// not decode into a Record. Raw carries the extractor's payload for
// diagnostics.
type ValidationError struct {
	Cause error
	Raw   json.RawMessage
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("extractor output failed validation: %v", e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// Runner is the capability required of a structured-output extractor:
// run a prompt, return raw JSON constrained to the Record schema.
type Runner interface {
	Run(ctx context.Context, prompt string) (json.RawMessage, error)
}

// RecordSink receives the validated record. The session store satisfies
// this.
type RecordSink interface {
	SetTicket(Record)
}

// Pipeline drives transcript rendering, extraction, validation and
// storage. It performs no retries; callers decide whether to re-invoke.
type Pipeline struct {
	sink   RecordSink
	logger *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline that stores validated records in sink.
func NewPipeline(sink RecordSink, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		sink:   sink,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extract renders the log into a transcript, asks the extractor to
// populate the record schema, validates the result and stores it.
func (p *Pipeline) Extract(ctx context.Context, extractor Runner, log []agent.Message) (Record, error) {
	if len(log) == 0 {
		return Record{}, ErrEmptyHistory
	}

	transcript := RenderTranscript(log)
	prompt := buildPrompt(transcript)

	p.logger.Debug("running extraction", "messages", len(log))

	raw, err := extractor.Run(ctx, prompt)
	if err != nil {
		return Record{}, err
	}

	rec, err := decodeRecord(raw)
	if err != nil {
		return Record{}, &ValidationError{Cause: err, Raw: raw}
	}

	p.sink.SetTicket(rec)
	p.logger.Info("ticket extracted", "title", rec.Title)
	return rec, nil
}

// RenderTranscript renders a message log one line per message as
// "ROLE: content", joined by blank lines, in log order. The rendering is
// deterministic so extraction prompts are reproducible.
func RenderTranscript(log []agent.Message) string {
	parts := make([]string, len(log))
	for i, m := range log {
		parts[i] = strings.ToUpper(string(m.Role)) + ": " + m.Content
	}
	return strings.Join(parts, "\n\n")
}

func buildPrompt(transcript string) string {
	return fmt.Sprintf(
		"Based on the following chat conversation, create a ticket for our ticket system. "+
			"Extract relevant information like the issue, priority, and any important details."+
			"\n\nCHAT HISTORY:\n%s\n\n"+
			"Respond with a single JSON object matching this schema:\n%s",
		transcript, Schema(),
	)
}

// decodeRecord strictly decodes the extractor output: exactly one JSON
// object, no unknown fields.
func decodeRecord(raw json.RawMessage) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return Record{}, err
	}
	if dec.More() {
		return Record{}, errors.New("trailing data after record")
	}
	return rec, nil
}
