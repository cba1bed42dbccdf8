// Package pipeline implements the scheduler: a synchronous per-frame
// fan-out across a caller-declared sequence of sinks that shares one
// decoded RGB buffer across any sinks needing it, preserves one capture
// timestamp through to every sink, and returns the capture buffer to the
// driver only after all sinks complete.
package pipeline

import (
	"fmt"

	"github.com/TheChrisland/FastMJPG/frame"
	"github.com/TheChrisland/FastMJPG/sink"
)

// Source produces one FrameEnvelope per tick. The capture and receive
// components each implement this with different completion semantics:
// capture always succeeds or errors fatally, receive can additionally
// signal a graceful shutdown.
type Source interface {
	// Next blocks until a frame is available. ok is false only on a
	// graceful shutdown signal (the UDP receiver's EBADF path); err is
	// non-nil only on a fatal condition.
	Next() (env frame.Envelope, ok bool, err error)
	// Release returns a leased frame's storage to the source, a no-op for
	// sources (like the UDP receiver) with no lease discipline.
	Release() error
}

// SinkKind tags which variant a SinkStage carries, letting the scheduler
// pattern-match for RGB materialization without dynamic dispatch.
type SinkKind int

const (
	SinkRecorder SinkKind = iota
	SinkUDPSender
	SinkRenderer
	SinkPipeJPEG
	SinkPipeRGB
)

// NeedsRGB reports whether this sink kind consumes the decoded RGB buffer
// rather than raw JPEG bytes.
func (k SinkKind) NeedsRGB() bool {
	return k == SinkRenderer || k == SinkPipeRGB
}

// FrameWriter is implemented by sinks that consume raw frame bytes: the
// UDP sender, the pipe writer (either JPEG or RGB mode), and the recorder.
type FrameWriter interface {
	WriteFrame(env frame.Envelope) error
}

// SinkStage is one entry in the scheduler's declared, ordered sink list.
type SinkStage struct {
	Kind   SinkKind
	Writer FrameWriter
}

// Scheduler owns the declared sink list, the single source, and the
// optional decoder, and drives the per-tick fan-out algorithm.
type Scheduler struct {
	sinks   []SinkStage
	source  Source
	decoder sink.Decoder

	sigintRequested bool
}

// New constructs a Scheduler. decoder may be nil if no declared sink needs
// RGB; the decoder must never be constructed in that case, so
// callers are expected to only pass one when at least one sink needs it.
func New(source Source, decoder sink.Decoder, sinks []SinkStage) *Scheduler {
	return &Scheduler{source: source, decoder: decoder, sinks: sinks}
}

// RequestShutdown sets the single-writer sigintRequested flag. It is safe
// to call from a signal handler: it touches nothing but this one bool.
func (s *Scheduler) RequestShutdown() {
	s.sigintRequested = true
}

// Run executes the scheduler loop until shutdown is requested or the
// source signals a graceful stop or a fatal error occurs.
func (s *Scheduler) Run() error {
	for {
		if s.sigintRequested {
			return nil
		}

		env, ok, err := s.source.Next()
		if err != nil {
			return fmt.Errorf("pipeline: source: %w", err)
		}
		if !ok {
			return nil
		}

		if err := s.fanOut(env); err != nil {
			return err
		}

		if err := s.source.Release(); err != nil {
			return fmt.Errorf("pipeline: release frame: %w", err)
		}
	}
}

// fanOut runs every declared sink against one envelope, in order,
// materializing the RGB buffer at most once on first demand.
func (s *Scheduler) fanOut(env frame.Envelope) error {
	var rgb []byte
	rgbMaterialized := false

	for _, stage := range s.sinks {
		if stage.Kind.NeedsRGB() && !rgbMaterialized {
			if s.decoder == nil {
				return fmt.Errorf("pipeline: sink requires RGB but no decoder was configured")
			}
			decoded, err := s.decoder.Decode(env.Payload)
			if err != nil {
				return fmt.Errorf("pipeline: decode: %w", err)
			}
			rgb = decoded
			rgbMaterialized = true
		}

		writeEnv := env
		if stage.Kind.NeedsRGB() {
			writeEnv = frame.Envelope{UTimestampUs: env.UTimestampUs, Payload: rgb}
		}
		if err := stage.Writer.WriteFrame(writeEnv); err != nil {
			return fmt.Errorf("pipeline: sink: %w", err)
		}
	}
	return nil
}
