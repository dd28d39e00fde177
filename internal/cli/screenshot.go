package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tapbot/internal/imgmatch"
)

func screenshotCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Capture the device screen to an image file",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			img, err := sess.Gateway.Screencap(ctx)
			if err != nil {
				return err
			}

			if out == "" {
				out = time.Now().Format("20060102_150405") + ".png"
			}
			if err := imgmatch.Save(img, out); err != nil {
				return err
			}
			b := img.Bounds()
			fmt.Printf("%s (%dx%d)\n", out, b.Dx(), b.Dy())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file, .png or .jpg (default <timestamp>.png)")
	return cmd
}
