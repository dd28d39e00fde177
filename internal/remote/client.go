package remote

import (
	"context"
	"fmt"
	"image"
	"net"
	"sync"
	"time"

	"tapbot/internal/adb"
)

const (
	dialTimeout = 10 * time.Second
	// maxFrameDim rejects absurd frame geometry before allocating.
	maxFrameDim = 1 << 15
	maxDevices  = 4096
)

// Client talks to an Agent and satisfies the loop's gateway contract.
// Safe for use from one loop goroutine plus occasional admin calls.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to an agent. Compression must match the agent's
// setting; the protocol has no negotiation.
func Dial(addr string, compress bool) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial agent: %w", err)
	}
	var s net.Conn = conn
	if compress {
		s = NewCompStream(conn)
	}
	return &Client{conn: s}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// roundTrip serializes one exchange and maps the context deadline onto
// the socket.
func (c *Client) roundTrip(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return err
	}
	return fn()
}

func (c *Client) expectOK() error {
	status, err := ReadTagStr(c.conn)
	if err != nil {
		return err
	}
	switch status {
	case "ok":
		return nil
	case "err":
		msg, err := ReadTagStr(c.conn)
		if err != nil {
			return fmt.Errorf("read agent error: %w", err)
		}
		return fmt.Errorf("agent: %s", msg)
	default:
		return fmt.Errorf("bad status frame %q", status)
	}
}

// Ping checks the connection end to end.
func (c *Client) Ping(ctx context.Context) error {
	return c.roundTrip(ctx, func() error {
		if err := WriteTagStr(c.conn, "ping"); err != nil {
			return err
		}
		return c.expectOK()
	})
}

// Devices lists the devices attached on the agent side.
func (c *Client) Devices(ctx context.Context) ([]adb.DeviceInfo, error) {
	var devs []adb.DeviceInfo
	err := c.roundTrip(ctx, func() error {
		if err := WriteTagStr(c.conn, "devices"); err != nil {
			return err
		}
		if err := c.expectOK(); err != nil {
			return err
		}
		n, err := ReadVLen(c.conn)
		if err != nil {
			return err
		}
		if n < 0 || n > maxDevices {
			return fmt.Errorf("%w: %d devices", ErrLengthOutOfRange, n)
		}
		devs = make([]adb.DeviceInfo, 0, n)
		for i := int64(0); i < n; i++ {
			serial, err := ReadTagStr(c.conn)
			if err != nil {
				return err
			}
			state, err := ReadTagStr(c.conn)
			if err != nil {
				return err
			}
			devs = append(devs, adb.DeviceInfo{Serial: serial, State: state})
		}
		return nil
	})
	return devs, err
}

// Screencap pulls one frame as raw pixels from the agent.
func (c *Client) Screencap(ctx context.Context) (image.Image, error) {
	var img image.Image
	err := c.roundTrip(ctx, func() error {
		if err := WriteTagStr(c.conn, "screencap"); err != nil {
			return err
		}
		if err := c.expectOK(); err != nil {
			return err
		}
		w, err := ReadVLen(c.conn)
		if err != nil {
			return err
		}
		h, err := ReadVLen(c.conn)
		if err != nil {
			return err
		}
		if w <= 0 || h <= 0 || w > maxFrameDim || h > maxFrameDim {
			return fmt.Errorf("bad frame size %dx%d", w, h)
		}
		pix, err := ReadVTagByte(c.conn)
		if err != nil {
			return err
		}
		if int64(len(pix)) != w*h*4 {
			return fmt.Errorf("frame %dx%d carries %d bytes", w, h, len(pix))
		}
		img = &image.NRGBA{
			Pix:    pix,
			Stride: int(w) * 4,
			Rect:   image.Rect(0, 0, int(w), int(h)),
		}
		return nil
	})
	return img, err
}

// Tap dispatches a tap on the agent's device.
func (c *Client) Tap(ctx context.Context, p image.Point) error {
	return c.roundTrip(ctx, func() error {
		if err := WriteTagStr(c.conn, "tap"); err != nil {
			return err
		}
		if err := WriteVLen(c.conn, int64(p.X)); err != nil {
			return err
		}
		if err := WriteVLen(c.conn, int64(p.Y)); err != nil {
			return err
		}
		return c.expectOK()
	})
}
