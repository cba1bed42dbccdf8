package pipeline

import (
	"github.com/TheChrisland/FastMJPG/frame"
	"github.com/TheChrisland/FastMJPG/pipe"
	"github.com/TheChrisland/FastMJPG/sink"
	"github.com/TheChrisland/FastMJPG/udpsender"
)

// RecorderWriter adapts a sink.Recorder to FrameWriter.
type RecorderWriter struct {
	Recorder sink.Recorder
}

func (w RecorderWriter) WriteFrame(env frame.Envelope) error {
	return w.Recorder.Record(env.UTimestampUs, env.Payload)
}

// UDPSenderWriter adapts a udpsender.Sender to FrameWriter, always
// transmitting sendRounds rounds as configured at construction.
type UDPSenderWriter struct {
	Sender     *udpsender.Sender
	SendRounds uint32
}

func (w UDPSenderWriter) WriteFrame(env frame.Envelope) error {
	return w.Sender.SendFrame(env.UTimestampUs, env.Payload, env.Length(), w.SendRounds)
}

// PipeWriter adapts a pipe.Writer to FrameWriter; the same adapter serves
// both pipe-jpeg and pipe-rgb stages, since framing is identical and only
// the sink kind (checked by the scheduler) determines which payload it
// receives.
type PipeWriter struct {
	Writer *pipe.Writer
}

func (w PipeWriter) WriteFrame(env frame.Envelope) error {
	return w.Writer.WriteFrame(env.UTimestampUs, env.Payload, env.Length())
}

// RendererWriter adapts a sink.Renderer to FrameWriter, discarding the
// timestamp (the renderer draws immediately and needs none).
type RendererWriter struct {
	Renderer sink.Renderer
}

func (w RendererWriter) WriteFrame(env frame.Envelope) error {
	return w.Renderer.Render(env.Payload)
}
