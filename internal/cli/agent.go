package cli

import (
	"context"
	"fmt"
	"image"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tapbot/internal/adb"
	"tapbot/internal/remote"
)

func agentCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Serve the local device to remote tapbot instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rf.Remote != "" {
				return fmt.Errorf("agent serves a local device; drop --remote")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, closeLog, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess, err := openSession(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer sess.Close()

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				ln.Close()
			}()

			log.Info("agent listening",
				"addr", ln.Addr().String(),
				"device", sess.Name,
				"compress", rf.Compress)
			a := &remote.Agent{
				Backend:  agentBackend{dev: sess.Local, conn: sess.Conn},
				Logger:   log,
				Compress: rf.Compress,
			}
			return a.Serve(ctx, ln)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":6900", "listen address")
	return cmd
}

// agentBackend exposes the picked local device over the wire protocol.
type agentBackend struct {
	dev  *adb.Device
	conn *adb.Conn
}

func (b agentBackend) Devices(ctx context.Context) ([]adb.DeviceInfo, error) {
	return b.conn.Devices(ctx)
}

func (b agentBackend) Screencap(ctx context.Context) (image.Image, error) {
	return b.dev.Screencap(ctx)
}

func (b agentBackend) Tap(ctx context.Context, p image.Point) error {
	return b.dev.Tap(ctx, p)
}
