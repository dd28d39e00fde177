package cli

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tapbot/internal/buildinfo"
	"tapbot/internal/clicker"
	"tapbot/internal/config"
	"tapbot/internal/imgmatch"
	"tapbot/internal/runlog"
	"tapbot/internal/tui"
)

func runCmd() *cobra.Command {
	var (
		iterations   int
		useTUI       bool
		mode         string
		x, y         int
		templatePath string
		threshold    float64
		scanInterval time.Duration
		offset       int
		minDelay     time.Duration
		maxDelay     time.Duration
		appPkg       string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the click loop against the selected device",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("mode") {
				cfg.ClickMode.Mode = mode
			}
			if f.Changed("x") {
				cfg.Coordinates.X = x
			}
			if f.Changed("y") {
				cfg.Coordinates.Y = y
			}
			if f.Changed("template") {
				cfg.Paths.TemplatePath = templatePath
			}
			if f.Changed("threshold") {
				cfg.ImageMatching.Threshold = threshold
			}
			if f.Changed("scan-interval") {
				cfg.Automation.ScanInterval = config.Duration(scanInterval)
			}
			if f.Changed("offset") {
				cfg.Automation.RandomOffset = offset
			}
			if f.Changed("min-delay") {
				cfg.ClickSpeed.MinDelay = config.Duration(minDelay)
			}
			if f.Changed("max-delay") {
				cfg.ClickSpeed.MaxDelay = config.Duration(maxDelay)
			}
			if f.Changed("app") {
				cfg.App.Package = appPkg
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, closeLog, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			return runLoop(cfg, log, iterations, useTUI)
		},
	}

	cmd.Flags().IntVarP(&iterations, "iterations", "n", 0, "stop after this many iterations (0 = run until interrupted)")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "show a live status screen")
	cmd.Flags().StringVar(&mode, "mode", "", "click mode: template or coordinates")
	cmd.Flags().IntVar(&x, "x", 0, "fixed tap x in coordinates mode")
	cmd.Flags().IntVar(&y, "y", 0, "fixed tap y in coordinates mode")
	cmd.Flags().StringVar(&templatePath, "template", "", "template image path")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "match threshold in [0,1]")
	cmd.Flags().DurationVar(&scanInterval, "scan-interval", 0, "rescan period (0 keeps the first match)")
	cmd.Flags().IntVar(&offset, "offset", 0, "random tap offset in pixels")
	cmd.Flags().DurationVar(&minDelay, "min-delay", 0, "minimum delay between clicks")
	cmd.Flags().DurationVar(&maxDelay, "max-delay", 0, "maximum delay between clicks")
	cmd.Flags().StringVar(&appPkg, "app", "", "app package to start before and stop after the run")
	return cmd
}

func runLoop(cfg config.Config, log *slog.Logger, iterations int, useTUI bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sess.Close()

	if cfg.App.Package != "" {
		if sess.Local == nil {
			log.Warn("app lifecycle skipped on a remote gateway", "package", cfg.App.Package)
		} else {
			log.Info("starting app", "package", cfg.App.Package)
			if err := sess.Local.StartApp(ctx, cfg.App.Package); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				if err := sess.Local.StopApp(stopCtx, cfg.App.Package); err != nil {
					log.Warn("app stop failed", "package", cfg.App.Package, "err", err)
				}
			}()
			if wait := cfg.App.StartWait.Std(); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					log.Info("interrupted during app start wait")
					return nil
				}
			}
		}
	}

	var matcher clicker.Matcher
	if cfg.ClickMode.Mode == config.ModeTemplate {
		matcher, err = newMatcher(cfg)
		if err != nil {
			return err
		}
	}

	loop, err := clicker.New(clicker.Options{
		Config: clicker.Config{
			Mode:          loopMode(cfg.ClickMode.Mode),
			MinDelay:      cfg.ClickSpeed.MinDelay.Std(),
			MaxDelay:      cfg.ClickSpeed.MaxDelay.Std(),
			ScanInterval:  cfg.Automation.ScanInterval.Std(),
			Offset:        cfg.Automation.RandomOffset,
			Coords:        image.Pt(cfg.Coordinates.X, cfg.Coordinates.Y),
			MaxIterations: iterations,
		},
		Gateway: sess.Gateway,
		Matcher: matcher,
		Control: clicker.NewController(),
		Logger:  log,
	})
	if err != nil {
		return err
	}

	man := runlog.New(sess.Name, cfg.ClickMode.Mode, cfg.Source, buildinfo.Version(), time.Now())
	man.Start(time.Now())
	if _, err := man.Save(cfg.Paths.RunsDirectory); err != nil {
		log.Warn("manifest write failed", "err", err)
	}

	var runErr error
	if useTUI {
		ui, err := tui.New(loop, sess.Name, cfg.ClickMode.Mode)
		if err != nil {
			return fmt.Errorf("tui: %w", err)
		}
		loopCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		done := make(chan struct{})
		go func() {
			runErr = loop.Run(loopCtx)
			cancel()
			close(done)
		}()
		ui.Run(loopCtx, cancel)
		<-done
	} else {
		banner(cfg, sess.Name, iterations)
		runErr = loop.Run(ctx)
	}

	snap := loop.Snapshot()
	term := snap.Termination
	switch {
	case runErr != nil:
		term = "failed: " + runErr.Error()
	case term == "killed" && snap.LastError != "":
		term = "killed: " + snap.LastError
	}
	man.Finish(time.Now(), term, counters(snap))
	if path, err := man.Save(cfg.Paths.RunsDirectory); err != nil {
		log.Warn("manifest write failed", "err", err)
	} else {
		log.Info("run recorded", "manifest", path)
	}

	summary(snap)
	return runErr
}

// newBound loads the template with its region and reference size and
// ties it to the configured threshold.
func newBound(cfg config.Config) (*imgmatch.Bound, error) {
	region, err := cfg.Region()
	if err != nil {
		return nil, err
	}
	refSize, err := cfg.ReferenceSize()
	if err != nil {
		return nil, err
	}
	tmpl, err := imgmatch.LoadTemplate(cfg.Paths.TemplatePath, region, refSize)
	if err != nil {
		return nil, err
	}
	return imgmatch.NewBound(tmpl, cfg.ImageMatching.Threshold), nil
}

func newMatcher(cfg config.Config) (clicker.Matcher, error) {
	bound, err := newBound(cfg)
	if err != nil {
		return nil, err
	}
	return clicker.MatcherFunc(func(frame image.Image) (clicker.Match, bool, error) {
		res, err := bound.Find(frame)
		if err != nil {
			return clicker.Match{}, false, err
		}
		return clicker.Match{Point: res.Point, Score: res.Score}, res.Found, nil
	}), nil
}

func loopMode(s string) clicker.Mode {
	if s == config.ModeCoordinates {
		return clicker.ModeCoordinates
	}
	return clicker.ModeTemplate
}

func counters(s clicker.Stats) runlog.Counters {
	return runlog.Counters{
		Iterations:    s.Iterations,
		Clicks:        s.Clicks,
		Scans:         s.Scans,
		Misses:        s.Misses,
		CaptureErrors: s.CaptureErrors,
		MatchErrors:   s.MatchErrors,
		TapErrors:     s.TapErrors,
	}
}

func banner(cfg config.Config, device string, iterations int) {
	color.New(color.FgCyan, color.Bold).Printf("tapbot %s\n", buildinfo.Version())
	fmt.Printf("  device    %s\n", device)
	fmt.Printf("  mode      %s\n", cfg.ClickMode.Mode)
	if cfg.ClickMode.Mode == config.ModeCoordinates {
		fmt.Printf("  target    (%d,%d)\n", cfg.Coordinates.X, cfg.Coordinates.Y)
	} else {
		fmt.Printf("  template  %s (threshold %.2f)\n", cfg.Paths.TemplatePath, cfg.ImageMatching.Threshold)
	}
	fmt.Printf("  delay     %s..%s, offset %dpx\n",
		cfg.ClickSpeed.MinDelay, cfg.ClickSpeed.MaxDelay, cfg.Automation.RandomOffset)
	if iterations > 0 {
		fmt.Printf("  stop at   %d iterations\n", iterations)
	}
	fmt.Println("  press ctrl-c to stop")
}

func summary(s clicker.Stats) {
	paint := color.New(color.FgGreen)
	switch s.Termination {
	case "cancelled":
		paint = color.New(color.FgYellow)
	case "killed":
		paint = color.New(color.FgRed)
	}
	paint.Printf("%s", s.Termination)
	fmt.Printf(": %d clicks over %d iterations", s.Clicks, s.Iterations)
	if s.Scans > 0 {
		fmt.Printf(", %d scans (%d misses)", s.Scans, s.Misses)
	}
	if n := s.CaptureErrors + s.MatchErrors + s.TapErrors; n > 0 {
		fmt.Printf(", %d transient errors", n)
	}
	fmt.Println()
}
