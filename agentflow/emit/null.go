package emit

import "context"

// NullEmitter discards every event. Useful as the default Emitter when a
// Flow is not configured with one, and in tests that don't care about
// observability output.
type NullEmitter struct{}

// NewNullEmitter constructs a NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

func (n *NullEmitter) Emit(event Event) {}

func (n *NullEmitter) EmitBatch(ctx context.Context, events []Event) error { return nil }

func (n *NullEmitter) Flush(ctx context.Context) error { return nil }

var _ Emitter = (*NullEmitter)(nil)
