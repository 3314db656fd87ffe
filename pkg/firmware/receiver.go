package firmware

import (
	"context"
	"io"
)

// Receiver pumps bytes from the link into the core, standing in for the
// UART receive interrupt. It owns the producer side of the queue.
type Receiver struct {
	Reader io.Reader
	Core   *Core
}

// Name implements framework.Named.
func (r *Receiver) Name() string {
	return "receiver"
}

// Run implements framework.Runnable.
func (r *Receiver) Run(ctx context.Context) error {
	buf := make([]byte, 64)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := r.Reader.Read(buf)
		for i := 0; i < n; i++ {
			r.Core.OnByte(buf[i])
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
