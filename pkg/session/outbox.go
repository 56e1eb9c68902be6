package session

import "github.com/teslashibe/salon-voice/pkg/pcm"

// DefaultQueueSize bounds the outbound microphone queue.
const DefaultQueueSize = 32

// outbox is a bounded FIFO of microphone frames with a single producer. When
// full, the oldest frame is dropped so the producer never blocks.
type outbox struct {
	ch     chan pcm.WireFrame
	onDrop func()
}

func newOutbox(size int, onDrop func()) *outbox {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &outbox{ch: make(chan pcm.WireFrame, size), onDrop: onDrop}
}

func (o *outbox) push(f pcm.WireFrame) {
	for {
		select {
		case o.ch <- f:
			return
		default:
		}

		select {
		case <-o.ch:
			if o.onDrop != nil {
				o.onDrop()
			}
		default:
		}
	}
}
