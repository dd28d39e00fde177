// Package adb drives an Android device through the adb binary: device
// enumeration and selection, screen capture, and input dispatch.
package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

var (
	// ErrNoDevice means enumeration found no ready device.
	ErrNoDevice = errors.New("no device connected")
	// ErrDeviceSelection means the requested serial or index did not
	// resolve to a ready device.
	ErrDeviceSelection = errors.New("device selection failed")
)

// Runner executes one external command and returns its stdout. Tests
// substitute a fake; the default shells out.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Conn invokes adb, optionally pinned to one device serial.
type Conn struct {
	exe    string
	serial string
	run    Runner
	log    *slog.Logger
}

func New(exe, serial string, logger *slog.Logger) *Conn {
	if exe == "" {
		exe = "adb"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{exe: exe, serial: serial, run: execRunner, log: logger}
}

// WithSerial returns a copy of the connection pinned to serial.
func (c *Conn) WithSerial(serial string) *Conn {
	pinned := *c
	pinned.serial = serial
	return &pinned
}

func (c *Conn) Serial() string {
	return c.serial
}

func (c *Conn) args(parts ...string) []string {
	if c.serial == "" {
		return parts
	}
	return append([]string{"-s", c.serial}, parts...)
}

// Adb runs one adb invocation and returns its stdout.
func (c *Conn) Adb(ctx context.Context, parts ...string) ([]byte, error) {
	argv := c.args(parts...)
	c.log.Debug("adb", "args", strings.Join(argv, " "))
	out, err := c.run(ctx, c.exe, argv...)
	if err != nil {
		return nil, fmt.Errorf("adb %s: %w", strings.Join(parts, " "), decorate(err))
	}
	return out, nil
}

// Shell runs a device shell command through adb.
func (c *Conn) Shell(ctx context.Context, parts ...string) ([]byte, error) {
	return c.Adb(ctx, append([]string{"shell"}, parts...)...)
}

// decorate folds captured stderr into exec errors so operators see what
// adb actually complained about.
func decorate(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg := strings.TrimSpace(string(exitErr.Stderr)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
	}
	return err
}

// Version reports the adb version line, failing loudly when the binary is
// absent so startup can abort with a useful message.
func (c *Conn) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, c.exe, "version")
	if err != nil {
		return "", fmt.Errorf("adb not available at %q: %w", c.exe, decorate(err))
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// WaitForDevice blocks until a device is ready or ctx expires.
func (c *Conn) WaitForDevice(ctx context.Context) error {
	_, err := c.Adb(ctx, "wait-for-device")
	return err
}

// DeviceInfo is one row of `adb devices`.
type DeviceInfo struct {
	Serial string
	State  string
}

func (d DeviceInfo) Ready() bool {
	return d.State == "device"
}

// Devices enumerates connected devices in any state.
func (c *Conn) Devices(ctx context.Context) ([]DeviceInfo, error) {
	out, err := c.run(ctx, c.exe, "devices")
	if err != nil {
		return nil, fmt.Errorf("adb devices: %w", decorate(err))
	}
	return parseDevices(out), nil
}

func parseDevices(out []byte) []DeviceInfo {
	var devices []DeviceInfo
	for _, line := range bytes.Split(out, []byte("\n")) {
		fields := strings.Fields(string(line))
		if len(fields) < 2 {
			continue
		}
		// Header and daemon chatter never look like "<serial>\t<state>".
		switch fields[0] {
		case "List", "*":
			continue
		}
		devices = append(devices, DeviceInfo{Serial: fields[0], State: fields[1]})
	}
	return devices
}

// Pick resolves the device to use. A serial wins over the index; the index
// addresses the ready devices in enumeration order.
func Pick(devices []DeviceInfo, serial string, index int, logger *slog.Logger) (DeviceInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if serial != "" {
		for _, d := range devices {
			if d.Serial != serial {
				continue
			}
			if !d.Ready() {
				return DeviceInfo{}, fmt.Errorf("%w: device %s is %s", ErrDeviceSelection, serial, d.State)
			}
			return d, nil
		}
		return DeviceInfo{}, fmt.Errorf("%w: serial %q not connected", ErrDeviceSelection, serial)
	}

	var ready []DeviceInfo
	for _, d := range devices {
		if d.Ready() {
			ready = append(ready, d)
		}
	}
	if len(ready) == 0 {
		return DeviceInfo{}, ErrNoDevice
	}
	if index < 0 || index >= len(ready) {
		return DeviceInfo{}, fmt.Errorf("%w: index %d with %d ready device(s)", ErrDeviceSelection, index, len(ready))
	}
	if len(ready) > 1 {
		logger.Warn("multiple devices connected", "count", len(ready), "using", ready[index].Serial)
	}
	return ready[index], nil
}
