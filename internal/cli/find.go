package cli

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tapbot/internal/config"
	"tapbot/internal/imgmatch"
)

func findCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "find [template]",
		Short: "Locate a template on the screen or in a saved frame",
		Long: `Locate a template image and print "x,y score". The point is the
template center, the same point the run command taps. The template
argument overrides paths.template_path from the config. Exits
non-zero when the template is not found.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Paths.TemplatePath = args[0]
			}
			if cfg.Paths.TemplatePath == "" {
				return fmt.Errorf("%w: paths.template_path required", config.ErrInvalid)
			}
			if t := cfg.ImageMatching.Threshold; t < 0 || t > 1 {
				return fmt.Errorf("%w: image_matching.threshold %v outside [0,1]", config.ErrInvalid, t)
			}
			log, closeLog, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			bound, err := newBound(cfg)
			if err != nil {
				return err
			}

			var frame image.Image
			if input != "" {
				frame, err = imgmatch.Open(input)
				if err != nil {
					return err
				}
			} else {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				sess, err := openSession(ctx, cfg, log)
				if err != nil {
					return err
				}
				defer sess.Close()
				frame, err = sess.Gateway.Screencap(ctx)
				if err != nil {
					return err
				}
			}

			res, err := bound.Find(frame)
			if err != nil {
				return err
			}
			if !res.Found {
				return fmt.Errorf("template not found (threshold %.2f)", cfg.ImageMatching.Threshold)
			}
			fmt.Printf("%d,%d score %.3f\n", res.Point.X, res.Point.Y, res.Score)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "search a saved frame instead of the live screen")
	return cmd
}
