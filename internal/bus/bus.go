// Package bus carries lifecycle and output messages from concurrently running
// executors to the single scheduler loop.
package bus

import (
	"sync"
	"time"
)

// Bus is an unbounded FIFO queue of messages. Send never blocks; Receive
// blocks up to a timeout and returns Empty when nothing arrived.
// Any number of goroutines may Send concurrently.
type Bus struct {
	mu     sync.Mutex
	queue  []Message
	notify chan struct{} // holds at most one wake-up token
}

func New() *Bus {
	return &Bus{notify: make(chan struct{}, 1)}
}

// Send appends m to the queue.
func (b *Bus) Send(m Message) {
	b.mu.Lock()
	b.queue = append(b.queue, m)
	b.mu.Unlock()
	b.wake()
}

// SendSystem sends an Output line labeled with SystemName.
func (b *Bus) SendSystem(text string) {
	b.Send(Output{Meta: NewMeta(SystemName, ""), Line: text})
}

// Receive returns the oldest queued message, waiting up to timeout for one
// to arrive. On timeout it returns an Empty message.
func (b *Bus) Receive(timeout time.Duration) Message {
	if m, ok := b.pop(); ok {
		return m
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case <-b.notify:
			if m, ok := b.pop(); ok {
				return m
			}
		case <-t.C:
			if m, ok := b.pop(); ok {
				return m
			}
			return Empty{Meta: NewMeta(SystemName, ""), Text: NoMessages}
		}
	}
}

// Len reports how many messages are queued.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Bus) pop() (Message, bool) {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return nil, false
	}
	m := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	more := len(b.queue) > 0
	b.mu.Unlock()
	if more {
		// pass the token on so another waiting receiver is not stranded
		b.wake()
	}
	return m, true
}

func (b *Bus) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
