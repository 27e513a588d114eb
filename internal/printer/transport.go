// Package printer talks raw TCP to LAN printers: sending encoded tickets and
// discovering port 9100 listeners on the local subnet.
package printer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"pos-edge/internal/metrics"
)

// ErrUnreachable wraps every connect, write or timeout failure of a send.
var ErrUnreachable = errors.New("printer unreachable")

// DefaultSendTimeout applies when a caller passes a zero timeout.
const DefaultSendTimeout = 4 * time.Second

// Sender streams an encoded job to a printer.
type Sender interface {
	Send(ctx context.Context, ip string, port int, data []byte, timeout time.Duration) error
}

// TCPSender is the raw port-9100 transport.
type TCPSender struct {
	Dialer net.Dialer
}

// NewTCPSender returns a ready to use TCP transport.
func NewTCPSender() *TCPSender {
	return &TCPSender{}
}

// Send connects to ip:port, writes the full buffer, half-closes the write side
// and returns. The socket is always closed before returning.
func (s *TCPSender) Send(ctx context.Context, ip string, port int, data []byte, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	addr := net.JoinHostPort(ip, strconv.Itoa(port))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := s.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: connect %s: %v", ErrUnreachable, addr, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, addr, err)
	}

	written := 0
	for written < len(data) {
		n, err := conn.Write(data[written:])
		written += n
		if err != nil {
			return fmt.Errorf("%w: write %s after %d/%d bytes: %v", ErrUnreachable, addr, written, len(data), err)
		}
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return fmt.Errorf("%w: flush %s: %v", ErrUnreachable, addr, err)
		}
	}

	metrics.PrintBytesTotal.Add(float64(len(data)))
	log.Debug().Str("addr", addr).Int("bytes", len(data)).Msg("print job sent")
	return nil
}
