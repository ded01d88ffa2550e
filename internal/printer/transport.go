package printer

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrUnknownDevice    = errors.New("unknown device")
	ErrDeviceOffline    = errors.New("device is offline")
	ErrConnectionFailed = errors.New("connection failed")
)

// DeviceProfile identifies the physical printer and its pitch options.
type DeviceProfile struct {
	Device string
	Width  int
}

// Transport delivers a rendered byte stream to the print spooler.
// Send is synchronous and bounded by the context deadline.
type Transport interface {
	Send(ctx context.Context, raw []byte, profile DeviceProfile) error
}

// SocketTransport writes raw bytes to a JetDirect-style spooler port.
type SocketTransport struct {
	device string
	addr   string
}

func NewSocketTransport(device, addr string) *SocketTransport {
	return &SocketTransport{device: device, addr: addr}
}

func (t *SocketTransport) Send(ctx context.Context, raw []byte, profile DeviceProfile) error {
	if profile.Device != t.device {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, profile.Device)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceOffline, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	for written := 0; written < len(raw); {
		n, err := conn.Write(raw[written:])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		written += n
	}

	return nil
}

// IsPermanent reports whether a transport error terminates the job
// without retry. Everything else, timeouts included, is transient.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnknownDevice)
}
