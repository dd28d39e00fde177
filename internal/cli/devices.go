package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tapbot/internal/adb"
	"tapbot/internal/remote"
)

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices visible to the gateway",
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

			var devs []adb.DeviceInfo
			if rf.Remote != "" {
				c, err := remote.Dial(rf.Remote, rf.Compress)
				if err != nil {
					return err
				}
				defer c.Close()
				devs, err = c.Devices(ctx)
				if err != nil {
					return err
				}
			} else {
				devs, err = adb.New(rf.Adb, "", log).Devices(ctx)
				if err != nil {
					return err
				}
			}

			if len(devs) == 0 {
				return adb.ErrNoDevice
			}
			// The printed index is what --device-index selects, so only
			// ready devices get one.
			idx := 0
			for _, d := range devs {
				if d.Ready() {
					fmt.Printf("%2d  %-24s %s\n", idx, d.Serial, color.GreenString(d.State))
					idx++
					continue
				}
				fmt.Printf("    %-24s %s\n", d.Serial, d.State)
			}
			return nil
		},
	}
}
