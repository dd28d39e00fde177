package remote

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"net"
	"time"

	"tapbot/internal/adb"
	"tapbot/internal/imgmatch"
)

// Backend is the local device surface an agent exposes over the wire.
type Backend interface {
	Devices(ctx context.Context) ([]adb.DeviceInfo, error)
	Screencap(ctx context.Context) (image.Image, error)
	Tap(ctx context.Context, p image.Point) error
}

// opTimeout bounds a single backend call on behalf of a client.
const opTimeout = 30 * time.Second

// Agent answers gateway requests with a locally attached device.
type Agent struct {
	Backend  Backend
	Logger   *slog.Logger
	Compress bool
}

// Serve accepts clients until the listener closes or ctx ends. The
// caller closes the listener to stop it.
func (a *Agent) Serve(ctx context.Context, ln net.Listener) error {
	log := a.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		log.Info("client connected", "addr", conn.RemoteAddr().String())
		go a.handle(ctx, conn, log.With("addr", conn.RemoteAddr().String()))
	}
}

func (a *Agent) handle(ctx context.Context, conn net.Conn, log *slog.Logger) {
	defer conn.Close()
	var s net.Conn = conn
	if a.Compress {
		s = NewCompStream(conn)
	}

	for ctx.Err() == nil {
		op, err := ReadTagStr(s)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Warn("read op", "err", err)
			}
			log.Info("client disconnected")
			return
		}
		if err := a.dispatch(ctx, s, op); err != nil {
			// Broken framing or a dead socket; drop the client.
			log.Warn("op aborted", "op", op, "err", err)
			return
		}
		log.Debug("op served", "op", op)
	}
}

// dispatch runs one request/response exchange. Backend failures go back
// to the client as err frames; a non-nil return means the connection
// itself is no longer usable.
func (a *Agent) dispatch(ctx context.Context, s net.Conn, op string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	switch op {
	case "ping":
		return WriteTagStr(s, "ok")

	case "devices":
		devs, err := a.Backend.Devices(ctx)
		if err != nil {
			return replyErr(s, err)
		}
		if err := WriteTagStr(s, "ok"); err != nil {
			return err
		}
		if err := WriteVLen(s, int64(len(devs))); err != nil {
			return err
		}
		for _, d := range devs {
			if err := WriteTagStr(s, d.Serial); err != nil {
				return err
			}
			if err := WriteTagStr(s, d.State); err != nil {
				return err
			}
		}
		return nil

	case "screencap":
		frame, err := a.Backend.Screencap(ctx)
		if err != nil {
			return replyErr(s, err)
		}
		img := imgmatch.AsNRGBA(frame)
		b := img.Bounds()
		if img.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
			// Repack subimages so Pix is exactly w*h*4 bytes.
			packed := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
			draw.Draw(packed, packed.Bounds(), img, b.Min, draw.Src)
			img, b = packed, packed.Bounds()
		}
		if err := WriteTagStr(s, "ok"); err != nil {
			return err
		}
		if err := WriteVLen(s, int64(b.Dx())); err != nil {
			return err
		}
		if err := WriteVLen(s, int64(b.Dy())); err != nil {
			return err
		}
		return WriteVTagByte(s, img.Pix)

	case "tap":
		x, err := ReadVLen(s)
		if err != nil {
			return err
		}
		y, err := ReadVLen(s)
		if err != nil {
			return err
		}
		if err := a.Backend.Tap(ctx, image.Pt(int(x), int(y))); err != nil {
			return replyErr(s, err)
		}
		return WriteTagStr(s, "ok")

	default:
		replyErr(s, fmt.Errorf("unknown op %q", op))
		return fmt.Errorf("unknown op %q", op)
	}
}

// replyErr sends a backend failure to the client, message capped to the
// short-frame limit.
func replyErr(s net.Conn, err error) error {
	if werr := WriteTagStr(s, "err"); werr != nil {
		return werr
	}
	msg := err.Error()
	if len(msg) > 255 {
		msg = msg[:255]
	}
	return WriteTagStr(s, msg)
}
