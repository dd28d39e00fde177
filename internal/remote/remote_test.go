package remote

import (
	"bytes"
	"context"
	"errors"
	"image"
	"net"
	"strings"
	"sync"
	"testing"

	"tapbot/internal/adb"
)

type fakeBackend struct {
	mu     sync.Mutex
	frame  *image.NRGBA
	capErr error
	tapErr error
	devs   []adb.DeviceInfo
	taps   []image.Point
}

func (b *fakeBackend) Devices(ctx context.Context) ([]adb.DeviceInfo, error) {
	return b.devs, nil
}

func (b *fakeBackend) Screencap(ctx context.Context) (image.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capErr != nil {
		return nil, b.capErr
	}
	return b.frame, nil
}

func (b *fakeBackend) Tap(ctx context.Context, p image.Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tapErr != nil {
		return b.tapErr
	}
	b.taps = append(b.taps, p)
	return nil
}

func (b *fakeBackend) tapped() []image.Point {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]image.Point(nil), b.taps...)
}

func testFrame() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for i := range img.Pix {
		img.Pix[i] = byte(i * 7)
	}
	return img
}

// startPair runs an agent on a loopback listener and dials it.
func startPair(t *testing.T, b Backend, compress bool) *Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	agent := &Agent{Backend: b, Compress: compress}
	go agent.Serve(context.Background(), ln)

	c, err := Dial(ln.Addr().String(), compress)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientPing(t *testing.T) {
	c := startPair(t, &fakeBackend{}, false)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestClientScreencap(t *testing.T) {
	for _, compress := range []bool{false, true} {
		frame := testFrame()
		c := startPair(t, &fakeBackend{frame: frame}, compress)

		img, err := c.Screencap(context.Background())
		if err != nil {
			t.Fatalf("compress=%v: screencap: %v", compress, err)
		}
		got, ok := img.(*image.NRGBA)
		if !ok {
			t.Fatalf("compress=%v: frame type %T", compress, img)
		}
		if got.Bounds() != frame.Bounds() {
			t.Fatalf("compress=%v: bounds = %v, want %v", compress, got.Bounds(), frame.Bounds())
		}
		if !bytes.Equal(got.Pix, frame.Pix) {
			t.Fatalf("compress=%v: pixel data corrupted", compress)
		}
	}
}

func TestClientTap(t *testing.T) {
	b := &fakeBackend{}
	c := startPair(t, b, false)

	if err := c.Tap(context.Background(), image.Pt(120, 640)); err != nil {
		t.Fatalf("tap: %v", err)
	}
	taps := b.tapped()
	if len(taps) != 1 || taps[0] != image.Pt(120, 640) {
		t.Fatalf("agent saw taps %v, want [(120,640)]", taps)
	}
}

func TestClientDevices(t *testing.T) {
	b := &fakeBackend{devs: []adb.DeviceInfo{
		{Serial: "emulator-5554", State: "device"},
		{Serial: "R58M123", State: "offline"},
	}}
	c := startPair(t, b, false)

	devs, err := c.Devices(context.Background())
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if len(devs) != 2 {
		t.Fatalf("devices = %v, want 2 entries", devs)
	}
	if devs[0] != b.devs[0] || devs[1] != b.devs[1] {
		t.Fatalf("devices = %v, want %v", devs, b.devs)
	}
}

func TestAgentErrorPropagation(t *testing.T) {
	b := &fakeBackend{capErr: errors.New("screencap exited with status 1")}
	c := startPair(t, b, false)

	_, err := c.Screencap(context.Background())
	if err == nil {
		t.Fatal("backend failure did not propagate")
	}
	if !strings.Contains(err.Error(), "screencap exited") {
		t.Fatalf("err = %v, want the backend message", err)
	}

	// The connection survives a failed op.
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping after error: %v", err)
	}
}

func TestAgentTruncatesLongErrors(t *testing.T) {
	b := &fakeBackend{capErr: errors.New(strings.Repeat("x", 300))}
	c := startPair(t, b, false)

	_, err := c.Screencap(context.Background())
	if err == nil {
		t.Fatal("backend failure did not propagate")
	}
	if got := strings.Count(err.Error(), "x"); got != 255 {
		t.Fatalf("error carries %d marker bytes, want 255", got)
	}
}
