package cli

import (
	"context"
	"log/slog"
	"time"

	"tapbot/internal/adb"
	"tapbot/internal/clicker"
	"tapbot/internal/config"
	"tapbot/internal/remote"
)

// session is an opened device surface plus the pieces commands need
// around it. Local and Conn are nil when talking to a remote agent.
type session struct {
	Gateway clicker.Gateway
	Local   *adb.Device
	Conn    *adb.Conn
	Name    string
	close   func()
}

func (s *session) Close() {
	if s.close != nil {
		s.close()
	}
}

// openSession connects either to the remote agent named by --remote or
// to a locally picked adb device.
func openSession(ctx context.Context, cfg config.Config, log *slog.Logger) (*session, error) {
	if rf.Remote != "" {
		c, err := remote.Dial(rf.Remote, rf.Compress)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := c.Ping(pingCtx); err != nil {
			c.Close()
			return nil, err
		}
		log.Info("remote agent connected", "addr", rf.Remote, "compress", rf.Compress)
		return &session{
			Gateway: c,
			Name:    "remote:" + rf.Remote,
			close:   func() { c.Close() },
		}, nil
	}

	conn := adb.New(rf.Adb, "", log)
	ver, err := conn.Version(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug("adb available", "version", ver)

	devs, err := conn.Devices(ctx)
	if err != nil {
		return nil, err
	}
	picked, err := adb.Pick(devs, cfg.Device.Serial, cfg.Device.Index, log)
	if err != nil {
		return nil, err
	}
	conn = conn.WithSerial(picked.Serial)
	if err := conn.WaitForDevice(ctx); err != nil {
		return nil, err
	}
	log.Info("device ready", "serial", picked.Serial)

	// Sweep scratch files a crashed earlier run may have left behind.
	if n, err := adb.CleanScratch(cfg.Paths.TmpDirectory, cfg.Cleanup.MaxAge.Std(), time.Now()); err != nil {
		log.Warn("scratch sweep failed", "err", err)
	} else if n > 0 {
		log.Debug("scratch sweep", "removed", n)
	}

	dev := adb.NewDevice(conn, cfg.Paths.TmpDirectory, cfg.Device.ScreencapFileMode)
	return &session{
		Gateway: dev,
		Local:   dev,
		Conn:    conn,
		Name:    picked.Serial,
		close:   func() {},
	}, nil
}
