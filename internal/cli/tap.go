package cli

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

func tapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tap <x> <y>",
		Short: "Dispatch a single tap",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("x %q: %w", args[0], err)
			}
			y, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("y %q: %w", args[1], err)
			}
			if x < 0 || y < 0 {
				return fmt.Errorf("coordinates (%d,%d) must not be negative", x, y)
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

			if err := sess.Gateway.Tap(ctx, image.Pt(x, y)); err != nil {
				return err
			}
			log.Info("tap dispatched", "x", x, "y", y)
			return nil
		},
	}
}
