package mqtt

import (
	"context"
	"io"
	"sync"
)

// Link is the io.ReadWriter over a sub/pub topic pair. Read returns
// bytes from the subscribed topic in publish order; Write publishes.
type Link struct {
	Queue   *Queue
	RxTopic string
	TxTopic string

	msgCh   chan []byte
	pending []byte

	closeOnce sync.Once
}

// NewLink creates a Link on a topic pair.
func NewLink(q *Queue, rxTopic, txTopic string) *Link {
	return &Link{
		Queue:   q,
		RxTopic: rxTopic,
		TxTopic: txTopic,
		msgCh:   make(chan []byte, 16),
	}
}

// ForProgrammer sets topics using the convention for the device side:
// commands arrive on name/cmd, responses leave on name/msg.
func ForProgrammer(q *Queue, name string) *Link {
	return NewLink(q, name+"/cmd", name+"/msg")
}

// ForHost sets topics using the convention for the host side.
func ForHost(q *Queue, name string) *Link {
	return NewLink(q, name+"/msg", name+"/cmd")
}

// Read implements io.Reader.
func (l *Link) Read(p []byte) (int, error) {
	for len(l.pending) == 0 {
		pkt, ok := <-l.msgCh
		if !ok {
			return 0, io.EOF
		}
		l.pending = pkt
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

// Write implements io.Writer.
func (l *Link) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	if err := l.Queue.Pub(l.TxTopic, buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Run implements framework.Runnable: subscribes the rx topic and feeds
// Read until the context ends.
func (l *Link) Run(ctx context.Context) error {
	err := l.Queue.Sub(l.RxTopic, func(_ string, payload []byte) {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		l.msgCh <- buf
	})
	if err != nil {
		return err
	}
	// Unsubscribe before closing so the handler can no longer fire.
	defer func() {
		l.Queue.Unsub(l.RxTopic)
		l.closeOnce.Do(func() { close(l.msgCh) })
	}()
	<-ctx.Done()
	return ctx.Err()
}
