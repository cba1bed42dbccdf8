// Package frame defines the in-process value the scheduler passes to every
// sink: a JPEG frame tagged with its capture timestamp.
package frame

// Envelope is one JPEG frame in flight through the pipeline. Payload is
// only valid for the duration of the scheduler tick that produced it; sinks
// that need to retain bytes across ticks must copy.
type Envelope struct {
	UTimestampUs uint64
	Payload      []byte
}

// Length reports the size of Payload in bytes.
func (e Envelope) Length() uint32 {
	return uint32(len(e.Payload))
}
