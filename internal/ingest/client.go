package ingest

import (
	"context"
	"fmt"
	"net"
)

// Send delivers one payload the way the scanner does: connect, write, close.
func Send(ctx context.Context, addr string, payload []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("ingest: dial %s: %w", addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("ingest: write %s: %w", addr, err)
	}
	return nil
}
