package adb

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// deviceCapPath is where file-mode captures land on the device before
// being pulled. The wildcard form is what CleanDevice sweeps.
const (
	deviceCapPath = "/data/local/tmp/tapbot-screen.png"
	deviceCapGlob = "/data/local/tmp/tapbot-screen*.png"
)

// scratchPrefix names local scratch captures inside the tmp directory.
const scratchPrefix = "screen_"

// Device is the gateway to one selected device: screen capture and input
// dispatch over an adb connection pinned to its serial.
type Device struct {
	*Conn

	// TmpDir receives file-mode captures; removed again after decoding.
	TmpDir string
	// FileMode routes capture through a device-side file and adb pull
	// instead of exec-out streaming.
	FileMode bool

	now func() time.Time
}

func NewDevice(conn *Conn, tmpDir string, fileMode bool) *Device {
	return &Device{Conn: conn, TmpDir: tmpDir, FileMode: fileMode, now: time.Now}
}

// Screencap captures one frame.
func (d *Device) Screencap(ctx context.Context) (image.Image, error) {
	if d.FileMode {
		return d.screencapFile(ctx)
	}
	return d.screencapPipe(ctx)
}

func (d *Device) screencapPipe(ctx context.Context) (image.Image, error) {
	out, err := d.Adb(ctx, "exec-out", "screencap")
	if err != nil {
		return nil, err
	}
	img, err := DecodeFrame(out)
	if err != nil {
		return nil, err
	}
	d.log.Debug("screencap", "w", img.Bounds().Dx(), "h", img.Bounds().Dy())
	return img, nil
}

// screencapFile captures via the device filesystem. Both the device-side
// file and the pulled local copy are removed on every path out, even when
// the surrounding run was already cancelled.
func (d *Device) screencapFile(ctx context.Context) (image.Image, error) {
	if _, err := d.Shell(ctx, "screencap", "-p", deviceCapPath); err != nil {
		return nil, err
	}
	defer func() {
		cleanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if _, err := d.Shell(cleanCtx, "rm", "-f", deviceCapPath); err != nil {
			d.log.Warn("device capture cleanup failed", "err", err)
		}
	}()

	if err := os.MkdirAll(d.TmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	local := filepath.Join(d.TmpDir, fmt.Sprintf("%s%d.png", scratchPrefix, d.now().UnixNano()))
	if _, err := d.Adb(ctx, "pull", deviceCapPath, local); err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(local); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.log.Warn("scratch cleanup failed", "path", local, "err", err)
		}
	}()

	buf, err := os.ReadFile(local)
	if err != nil {
		return nil, fmt.Errorf("read pulled capture: %w", err)
	}
	img, err := DecodeFrame(buf)
	if err != nil {
		return nil, err
	}
	d.log.Debug("screencap", "w", img.Bounds().Dx(), "h", img.Bounds().Dy(), "via", local)
	return img, nil
}

// Tap dispatches one tap at loc.
func (d *Device) Tap(ctx context.Context, loc image.Point) error {
	_, err := d.Shell(ctx, "input", "tap", strconv.Itoa(loc.X), strconv.Itoa(loc.Y))
	return err
}

// Swipe drags from a to b over the given duration.
func (d *Device) Swipe(ctx context.Context, a, b image.Point, dur time.Duration) error {
	args := []string{"input", "swipe",
		strconv.Itoa(a.X), strconv.Itoa(a.Y),
		strconv.Itoa(b.X), strconv.Itoa(b.Y),
	}
	if dur > 0 {
		args = append(args, strconv.Itoa(int(dur.Milliseconds())))
	}
	_, err := d.Shell(ctx, args...)
	return err
}

// Keyevent sends one keycode, e.g. "KEYCODE_HOME".
func (d *Device) Keyevent(ctx context.Context, code string) error {
	_, err := d.Shell(ctx, "input", "keyevent", code)
	return err
}

// StartApp launches the package through the monkey launcher intent.
func (d *Device) StartApp(ctx context.Context, pkg string) error {
	_, err := d.Shell(ctx, "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	return err
}

// StopApp force-stops the package.
func (d *Device) StopApp(ctx context.Context, pkg string) error {
	_, err := d.Shell(ctx, "am", "force-stop", pkg)
	return err
}

// CleanDevice removes stray device-side captures left by interrupted runs.
func (d *Device) CleanDevice(ctx context.Context) error {
	_, err := d.Shell(ctx, "rm", "-f", deviceCapGlob)
	return err
}

// CleanScratch removes local scratch captures older than maxAge from dir.
// A non-positive maxAge removes them all. A missing directory is fine.
func CleanScratch(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scan scratch dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, scratchPrefix) || !strings.HasSuffix(name, ".png") {
			continue
		}
		if maxAge > 0 {
			info, err := e.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) <= maxAge {
				continue
			}
		}
		if err := os.Remove(filepath.Join(dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}
