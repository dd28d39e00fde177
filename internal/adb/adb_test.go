package adb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseDevices(t *testing.T) {
	out := []byte("* daemon not running; starting now at tcp:5037\n" +
		"* daemon started successfully\n" +
		"List of devices attached\n" +
		"emulator-5554\tdevice\n" +
		"R58M123ABC\tunauthorized\n" +
		"192.168.1.20:5555\toffline\n" +
		"\n")

	devices := parseDevices(out)
	if len(devices) != 3 {
		t.Fatalf("parsed %d devices, want 3: %v", len(devices), devices)
	}
	if devices[0].Serial != "emulator-5554" || !devices[0].Ready() {
		t.Fatalf("first device = %+v, want ready emulator-5554", devices[0])
	}
	if devices[1].State != "unauthorized" || devices[1].Ready() {
		t.Fatalf("second device = %+v, want unauthorized", devices[1])
	}
}

func TestParseDevicesEmpty(t *testing.T) {
	out := []byte("List of devices attached\n\n")
	if devices := parseDevices(out); len(devices) != 0 {
		t.Fatalf("parsed %d devices from empty list", len(devices))
	}
}

func TestPick(t *testing.T) {
	devices := []DeviceInfo{
		{Serial: "alpha", State: "device"},
		{Serial: "beta", State: "offline"},
		{Serial: "gamma", State: "device"},
	}

	got, err := Pick(devices, "", 0, testLogger())
	if err != nil || got.Serial != "alpha" {
		t.Fatalf("index 0 = %+v, %v; want alpha", got, err)
	}

	// Index addresses ready devices only, so 1 lands on gamma.
	got, err = Pick(devices, "", 1, testLogger())
	if err != nil || got.Serial != "gamma" {
		t.Fatalf("index 1 = %+v, %v; want gamma", got, err)
	}

	got, err = Pick(devices, "gamma", 0, testLogger())
	if err != nil || got.Serial != "gamma" {
		t.Fatalf("by serial = %+v, %v; want gamma", got, err)
	}

	if _, err := Pick(devices, "beta", 0, testLogger()); !errors.Is(err, ErrDeviceSelection) {
		t.Fatalf("offline serial: err = %v, want ErrDeviceSelection", err)
	}
	if _, err := Pick(devices, "missing", 0, testLogger()); !errors.Is(err, ErrDeviceSelection) {
		t.Fatalf("unknown serial: err = %v, want ErrDeviceSelection", err)
	}
	if _, err := Pick(devices, "", 5, testLogger()); !errors.Is(err, ErrDeviceSelection) {
		t.Fatalf("index out of range: err = %v, want ErrDeviceSelection", err)
	}
	if _, err := Pick(nil, "", 0, testLogger()); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("no devices: err = %v, want ErrNoDevice", err)
	}
}

// rawFrame builds a screencap framebuffer payload with the given header
// size for a w x h frame whose first pixel is red.
func rawFrame(headerLen, w, h int) []byte {
	buf := make([]byte, headerLen+w*h*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(w))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h))
	binary.LittleEndian.PutUint32(buf[8:12], 1) // RGBA_8888
	if len(buf) >= headerLen+4 {
		buf[headerLen+0] = 0xff
		buf[headerLen+3] = 0xff
	}
	return buf
}

func TestDecodeFrameRaw(t *testing.T) {
	for _, headerLen := range []int{12, 16} {
		img, err := DecodeFrame(rawFrame(headerLen, 4, 3))
		if err != nil {
			t.Fatalf("header %d: %v", headerLen, err)
		}
		if got := img.Bounds().Size(); got != image.Pt(4, 3) {
			t.Fatalf("header %d: size = %v, want (4,3)", headerLen, got)
		}
		nrgba, ok := img.(*image.NRGBA)
		if !ok {
			t.Fatalf("header %d: decoded %T, want *image.NRGBA", headerLen, img)
		}
		if nrgba.Pix[0] != 0xff || nrgba.Pix[3] != 0xff {
			t.Fatalf("header %d: first pixel = %v", headerLen, nrgba.Pix[:4])
		}
	}
}

func TestDecodeFramePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 7, 5))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, err := DecodeFrame(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(7, 5) {
		t.Fatalf("size = %v, want (7,5)", got)
	}
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("short"),
		rawFrame(12, 4, 3)[:20],       // truncated pixels
		append(rawFrame(12, 4, 3), 1), // trailing junk
		rawFrame(12, 0, 3),            // zero width
	}
	for i, buf := range cases {
		if _, err := DecodeFrame(buf); !errors.Is(err, ErrBadFrame) {
			t.Fatalf("case %d: err = %v, want ErrBadFrame", i, err)
		}
	}
}

// fakeRunner records invocations and dispatches canned behavior per
// command prefix.
type fakeRunner struct {
	calls  []string
	handle func(args []string) ([]byte, error)
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, strings.Join(args, " "))
	if f.handle != nil {
		return f.handle(args)
	}
	return nil, nil
}

func (f *fakeRunner) saw(want string) bool {
	for _, c := range f.calls {
		if c == want {
			return true
		}
	}
	return false
}

func testDevice(fr *fakeRunner, tmpDir string, fileMode bool) *Device {
	conn := New("adb", "serial1", testLogger())
	conn.run = fr.run
	return NewDevice(conn, tmpDir, fileMode)
}

func TestTapCommand(t *testing.T) {
	fr := &fakeRunner{}
	dev := testDevice(fr, t.TempDir(), false)

	if err := dev.Tap(context.Background(), image.Pt(120, 640)); err != nil {
		t.Fatalf("Tap: %v", err)
	}
	if !fr.saw("-s serial1 shell input tap 120 640") {
		t.Fatalf("tap command not issued, calls: %v", fr.calls)
	}
}

func TestScreencapPipe(t *testing.T) {
	fr := &fakeRunner{handle: func(args []string) ([]byte, error) {
		if strings.Join(args, " ") == "-s serial1 exec-out screencap" {
			return rawFrame(12, 6, 4), nil
		}
		return nil, fmt.Errorf("unexpected: %v", args)
	}}
	dev := testDevice(fr, t.TempDir(), false)

	img, err := dev.Screencap(context.Background())
	if err != nil {
		t.Fatalf("Screencap: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(6, 4) {
		t.Fatalf("size = %v, want (6,4)", got)
	}
}

func TestScreencapFileModeCleansUp(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "scratch")

	var pulled string
	fr := &fakeRunner{}
	fr.handle = func(args []string) ([]byte, error) {
		joined := strings.Join(args, " ")
		switch {
		case joined == "-s serial1 shell screencap -p "+deviceCapPath:
			return nil, nil
		case strings.HasPrefix(joined, "-s serial1 pull "):
			pulled = args[len(args)-1]
			var buf bytes.Buffer
			if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 3, 3))); err != nil {
				return nil, err
			}
			return nil, os.WriteFile(pulled, buf.Bytes(), 0o644)
		case joined == "-s serial1 shell rm -f "+deviceCapPath:
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected: %v", args)
	}
	dev := testDevice(fr, tmpDir, true)

	img, err := dev.Screencap(context.Background())
	if err != nil {
		t.Fatalf("Screencap: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(3, 3) {
		t.Fatalf("size = %v, want (3,3)", got)
	}
	if pulled == "" {
		t.Fatal("pull never invoked")
	}
	if _, err := os.Stat(pulled); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("local scratch %s not removed: %v", pulled, err)
	}
	if !fr.saw("-s serial1 shell rm -f " + deviceCapPath) {
		t.Fatalf("device-side capture not removed, calls: %v", fr.calls)
	}
}

func TestScreencapFileModeCleansDeviceOnPullFailure(t *testing.T) {
	fr := &fakeRunner{}
	fr.handle = func(args []string) ([]byte, error) {
		joined := strings.Join(args, " ")
		switch {
		case strings.HasPrefix(joined, "-s serial1 shell screencap"):
			return nil, nil
		case strings.HasPrefix(joined, "-s serial1 pull "):
			return nil, errors.New("pull broke")
		case strings.HasPrefix(joined, "-s serial1 shell rm "):
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected: %v", args)
	}
	dev := testDevice(fr, t.TempDir(), true)

	if _, err := dev.Screencap(context.Background()); err == nil {
		t.Fatal("Screencap must fail when pull fails")
	}
	if !fr.saw("-s serial1 shell rm -f " + deviceCapPath) {
		t.Fatalf("device-side capture not removed after failure, calls: %v", fr.calls)
	}
}

func TestCleanScratch(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	old := filepath.Join(dir, "screen_1.png")
	fresh := filepath.Join(dir, "screen_2.png")
	other := filepath.Join(dir, "keep.txt")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	if err := os.Chtimes(old, now.Add(-48*time.Hour), now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := CleanScratch(dir, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("CleanScratch: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d, want 1", removed)
	}
	if _, err := os.Stat(old); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("aged capture survived the sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh capture should survive")
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatal("unrelated file should survive")
	}

	// Zero age sweeps everything that matches.
	removed, err = CleanScratch(dir, 0, now)
	if err != nil || removed != 1 {
		t.Fatalf("full sweep removed %d (%v), want 1", removed, err)
	}
}

func TestCleanScratchMissingDir(t *testing.T) {
	removed, err := CleanScratch(filepath.Join(t.TempDir(), "absent"), time.Hour, time.Now())
	if err != nil || removed != 0 {
		t.Fatalf("missing dir: %d, %v", removed, err)
	}
}

func TestVersionErrorMentionsExe(t *testing.T) {
	fr := &fakeRunner{handle: func([]string) ([]byte, error) {
		return nil, errors.New("executable file not found")
	}}
	conn := New("/opt/missing/adb", "", testLogger())
	conn.run = fr.run

	_, err := conn.Version(context.Background())
	if err == nil || !strings.Contains(err.Error(), "/opt/missing/adb") {
		t.Fatalf("err = %v, want mention of the adb path", err)
	}
}
