package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tapbot/internal/adb"
)

func cleanCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove screenshot scratch files locally and on the device",
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

			maxAge := cfg.Cleanup.MaxAge.Std()
			if all {
				maxAge = 0
			}
			n, err := adb.CleanScratch(cfg.Paths.TmpDirectory, maxAge, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("removed %d local scratch file(s)\n", n)

			if rf.Remote != "" {
				// Device-side scratch lives on the agent host.
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			sess, err := openSession(ctx, cfg, log)
			if err != nil {
				log.Warn("device cleanup skipped", "err", err)
				return nil
			}
			defer sess.Close()
			if err := sess.Local.CleanDevice(ctx); err != nil {
				return err
			}
			fmt.Println("device scratch cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "remove scratch files regardless of age")
	return cmd
}
