package pipeline

import (
	"errors"
	"testing"

	"github.com/TheChrisland/FastMJPG/frame"
)

type fakeSource struct {
	envelopes []frame.Envelope
	idx       int
	released  int
	shutdown  bool
	err       error
}

func (s *fakeSource) Next() (frame.Envelope, bool, error) {
	if s.err != nil {
		return frame.Envelope{}, false, s.err
	}
	if s.idx >= len(s.envelopes) {
		return frame.Envelope{}, false, nil
	}
	e := s.envelopes[s.idx]
	s.idx++
	return e, true, nil
}

func (s *fakeSource) Release() error {
	s.released++
	return nil
}

type fakeWriter struct {
	received []frame.Envelope
}

func (w *fakeWriter) WriteFrame(env frame.Envelope) error {
	w.received = append(w.received, env)
	return nil
}

type fakeDecoder struct {
	calls int
	rgb   []byte
}

func (d *fakeDecoder) Decode(jpegBytes []byte) ([]byte, error) {
	d.calls++
	return d.rgb, nil
}

func TestRunFansOutToEverySinkInOrder(t *testing.T) {
	src := &fakeSource{envelopes: []frame.Envelope{
		{UTimestampUs: 1, Payload: []byte("a")},
		{UTimestampUs: 2, Payload: []byte("b")},
	}}
	w1 := &fakeWriter{}
	w2 := &fakeWriter{}
	sched := New(src, nil, []SinkStage{
		{Kind: SinkRecorder, Writer: w1},
		{Kind: SinkUDPSender, Writer: w2},
	})

	if err := sched.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(w1.received) != 2 || len(w2.received) != 2 {
		t.Fatalf("expected both sinks to see 2 frames, got %d and %d", len(w1.received), len(w2.received))
	}
	if src.released != 2 {
		t.Fatalf("expected source released twice, got %d", src.released)
	}
}

func TestRunMaterializesRGBAtMostOncePerFrame(t *testing.T) {
	src := &fakeSource{envelopes: []frame.Envelope{
		{UTimestampUs: 1, Payload: []byte("jpeg-bytes")},
	}}
	dec := &fakeDecoder{rgb: []byte("rgb-bytes")}
	w1 := &fakeWriter{}
	w2 := &fakeWriter{}
	sched := New(src, dec, []SinkStage{
		{Kind: SinkRenderer, Writer: w1},
		{Kind: SinkPipeRGB, Writer: w2},
	})

	if err := sched.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dec.calls != 1 {
		t.Fatalf("expected decoder invoked exactly once, got %d", dec.calls)
	}
	if string(w1.received[0].Payload) != "rgb-bytes" || string(w2.received[0].Payload) != "rgb-bytes" {
		t.Fatalf("expected both RGB sinks to see the materialized buffer")
	}
}

func TestRunNeverDecodesWithoutAnRGBSink(t *testing.T) {
	src := &fakeSource{envelopes: []frame.Envelope{{UTimestampUs: 1, Payload: []byte("x")}}}
	w1 := &fakeWriter{}
	sched := New(src, nil, []SinkStage{{Kind: SinkPipeJPEG, Writer: w1}})

	if err := sched.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(w1.received) != 1 {
		t.Fatalf("expected 1 frame delivered, got %d", len(w1.received))
	}
}

func TestRunStopsOnSourceShutdown(t *testing.T) {
	src := &fakeSource{} // Next immediately returns ok=false
	w1 := &fakeWriter{}
	sched := New(src, nil, []SinkStage{{Kind: SinkRecorder, Writer: w1}})

	if err := sched.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(w1.received) != 0 {
		t.Fatalf("expected no frames delivered after immediate shutdown")
	}
}

func TestRunStopsOnSigintRequestedBeforeNextTick(t *testing.T) {
	src := &fakeSource{envelopes: []frame.Envelope{
		{UTimestampUs: 1, Payload: []byte("a")},
		{UTimestampUs: 2, Payload: []byte("b")},
	}}
	w1 := &fakeWriter{}
	sched := New(src, nil, []SinkStage{{Kind: SinkRecorder, Writer: w1}})
	sched.RequestShutdown()

	if err := sched.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(w1.received) != 0 {
		t.Fatalf("expected no frames processed once shutdown was requested before Run")
	}
}

func TestRunPropagatesSourceError(t *testing.T) {
	wantErr := errors.New("boom")
	src := &fakeSource{err: wantErr}
	sched := New(src, nil, nil)

	if err := sched.Run(); err == nil {
		t.Fatal("expected error propagated from source")
	}
}

func TestFanOutFailsWithoutDecoderWhenRGBRequired(t *testing.T) {
	src := &fakeSource{envelopes: []frame.Envelope{{UTimestampUs: 1, Payload: []byte("x")}}}
	w1 := &fakeWriter{}
	sched := New(src, nil, []SinkStage{{Kind: SinkRenderer, Writer: w1}})

	if err := sched.Run(); err == nil {
		t.Fatal("expected error when an RGB sink is declared with no decoder")
	}
}
