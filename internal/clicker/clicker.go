// Package clicker runs the capture, match, tap loop against an abstract
// device gateway. It owns no adb or image code; those arrive through the
// Gateway and Matcher interfaces.
package clicker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"
)

// Mode selects how the loop picks its tap target.
type Mode int

const (
	// ModeTemplate locates the target by image matching each scan.
	ModeTemplate Mode = iota
	// ModeCoordinates taps a fixed point and never captures the screen.
	ModeCoordinates
)

func (m Mode) String() string {
	switch m {
	case ModeTemplate:
		return "template"
	case ModeCoordinates:
		return "coordinates"
	}
	return "unknown"
}

// ErrConfig reports an unusable loop configuration.
var ErrConfig = errors.New("invalid loop config")

// Config holds the loop parameters.
type Config struct {
	Mode Mode

	// Delay after each iteration is uniform in [MinDelay, MaxDelay].
	MinDelay time.Duration
	MaxDelay time.Duration

	// ScanInterval is how long a template match stays fresh. Zero keeps
	// the first match for the rest of the run.
	ScanInterval time.Duration

	// Offset jitters each tap by up to this many pixels per axis.
	Offset int

	// Coords is the fixed target in coordinates mode.
	Coords image.Point

	// MaxIterations stops the loop after that many rounds. Zero runs
	// until cancelled.
	MaxIterations int
}

func (c Config) validate() error {
	switch c.Mode {
	case ModeTemplate, ModeCoordinates:
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrConfig, int(c.Mode))
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("%w: negative min delay %v", ErrConfig, c.MinDelay)
	}
	if c.MaxDelay < c.MinDelay {
		return fmt.Errorf("%w: max delay %v below min delay %v", ErrConfig, c.MaxDelay, c.MinDelay)
	}
	if c.ScanInterval < 0 {
		return fmt.Errorf("%w: negative scan interval %v", ErrConfig, c.ScanInterval)
	}
	if c.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrConfig, c.Offset)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("%w: negative iteration cap %d", ErrConfig, c.MaxIterations)
	}
	if c.Mode == ModeCoordinates && (c.Coords.X < 0 || c.Coords.Y < 0) {
		return fmt.Errorf("%w: negative coordinates %v", ErrConfig, c.Coords)
	}
	return nil
}

// Gateway is the device surface the loop drives. adb.Device and the
// remote client both satisfy it.
type Gateway interface {
	Screencap(ctx context.Context) (image.Image, error)
	Tap(ctx context.Context, p image.Point) error
}

// Match is one sighting of the target.
type Match struct {
	Point image.Point
	Score float64
}

// Matcher locates the target in a captured frame. found=false with a
// nil error is a clean miss.
type Matcher interface {
	Find(frame image.Image) (m Match, found bool, err error)
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(frame image.Image) (Match, bool, error)

func (f MatcherFunc) Find(frame image.Image) (Match, bool, error) { return f(frame) }

// Stats is a point-in-time snapshot of loop progress.
type Stats struct {
	Iterations    int
	Clicks        int
	Scans         int
	Misses        int
	CaptureErrors int
	MatchErrors   int
	TapErrors     int

	// Target is the current tap point before jitter. HasTarget is false
	// until the first successful match in template mode.
	Target    image.Point
	HasTarget bool
	LastScore float64
	LastError string

	StartedAt   time.Time
	Termination string
}

// Options wires a Loop. Gateway is required; Matcher is required in
// template mode. Nil Logger, Clock, Sleep, Rand, and Control fall back
// to working defaults.
type Options struct {
	Config  Config
	Gateway Gateway
	Matcher Matcher
	Control *Controller
	Logger  *slog.Logger
	Clock   func() time.Time
	Sleep   func(ctx context.Context, d time.Duration) error
	Rand    Rand
}

// Loop is the automation loop. Construct with New, drive with Run.
type Loop struct {
	cfg     Config
	gw      Gateway
	matcher Matcher
	ctl     *Controller
	log     *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	rnd     Rand

	mu       sync.Mutex
	stats    Stats
	lastScan time.Time
}

func New(opts Options) (*Loop, error) {
	if err := opts.Config.validate(); err != nil {
		return nil, err
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("%w: nil gateway", ErrConfig)
	}
	if opts.Config.Mode == ModeTemplate && opts.Matcher == nil {
		return nil, fmt.Errorf("%w: template mode needs a matcher", ErrConfig)
	}

	l := &Loop{
		cfg:     opts.Config,
		gw:      opts.Gateway,
		matcher: opts.Matcher,
		ctl:     opts.Control,
		log:     opts.Logger,
		now:     opts.Clock,
		sleep:   opts.Sleep,
		rnd:     opts.Rand,
	}
	if l.ctl == nil {
		l.ctl = NewController()
	}
	if l.log == nil {
		l.log = slog.New(slog.DiscardHandler)
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.sleep == nil {
		l.sleep = defaultSleep
	}
	if l.rnd == nil {
		l.rnd = NewRand()
	}
	return l, nil
}

// Control exposes the pause/kill handle, for UIs driving the loop.
func (l *Loop) Control() *Controller { return l.ctl }

// Snapshot returns a copy of the current stats.
func (l *Loop) Snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Run executes iterations until the context is cancelled, the
// controller kills the loop, or the iteration cap is reached. The
// outcome lands in Stats.Termination; Run itself returns nil unless the
// loop could not even start.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.stats.StartedAt = l.now()
	l.mu.Unlock()
	l.log.Info("loop started",
		"mode", l.cfg.Mode.String(),
		"min_delay", l.cfg.MinDelay,
		"max_delay", l.cfg.MaxDelay,
		"max_iterations", l.cfg.MaxIterations)

	for {
		if ctx.Err() != nil {
			return l.finish("cancelled", ctx.Err())
		}
		if err := l.ctl.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return l.finish("cancelled", err)
			}
			return l.finish("killed", err)
		}

		l.mu.Lock()
		if l.cfg.MaxIterations > 0 && l.stats.Iterations >= l.cfg.MaxIterations {
			l.mu.Unlock()
			return l.finish("completed", nil)
		}
		l.stats.Iterations++
		n := l.stats.Iterations
		l.mu.Unlock()

		l.iterate(ctx, n)

		if err := l.wait(ctx); err != nil {
			return l.finish("cancelled", err)
		}
	}
}

// iterate performs one round: refresh the target if due, then tap it.
func (l *Loop) iterate(ctx context.Context, n int) {
	target, ok := l.acquire(ctx)
	if !ok {
		return
	}

	p := l.jitter(target)
	if err := l.gw.Tap(ctx, p); err != nil {
		l.log.Warn("tap failed", "iteration", n, "err", err)
		l.mu.Lock()
		l.stats.TapErrors++
		l.stats.LastError = err.Error()
		l.mu.Unlock()
		return
	}

	l.mu.Lock()
	l.stats.Clicks++
	clicks := l.stats.Clicks
	l.mu.Unlock()
	l.log.Debug("tap", "iteration", n, "clicks", clicks, "x", p.X, "y", p.Y)
}

// acquire resolves the tap target for this iteration. ok is false when
// the round must pass without a click.
func (l *Loop) acquire(ctx context.Context) (image.Point, bool) {
	if l.cfg.Mode == ModeCoordinates {
		return l.cfg.Coords, true
	}

	if l.rescanDue() && !l.scan(ctx) {
		return image.Point{}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats.Target, l.stats.HasTarget
}

// rescanDue reports whether the loop needs a fresh frame. Before the
// first match every iteration scans; afterwards only once ScanInterval
// has elapsed since the last hit, and never when the interval is zero.
func (l *Loop) rescanDue() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stats.HasTarget {
		return true
	}
	if l.cfg.ScanInterval <= 0 {
		return false
	}
	return l.now().Sub(l.lastScan) >= l.cfg.ScanInterval
}

// scan captures a frame and runs the matcher. It returns false when the
// iteration must skip its click: capture or matcher failure. A clean
// miss returns true so a previously seen target keeps getting tapped.
func (l *Loop) scan(ctx context.Context) bool {
	frame, err := l.gw.Screencap(ctx)
	if err != nil {
		l.log.Warn("screencap failed", "err", err)
		l.mu.Lock()
		l.stats.CaptureErrors++
		l.stats.LastError = err.Error()
		l.mu.Unlock()
		return false
	}

	l.mu.Lock()
	l.stats.Scans++
	l.mu.Unlock()

	m, found, err := l.matcher.Find(frame)
	if err != nil {
		l.log.Warn("match failed", "err", err)
		l.mu.Lock()
		l.stats.MatchErrors++
		l.stats.LastError = err.Error()
		l.mu.Unlock()
		return false
	}
	if !found {
		l.log.Debug("template not on screen")
		l.mu.Lock()
		l.stats.Misses++
		l.mu.Unlock()
		return true
	}

	l.mu.Lock()
	first := !l.stats.HasTarget
	moved := l.stats.Target != m.Point
	l.stats.Target = m.Point
	l.stats.HasTarget = true
	l.stats.LastScore = m.Score
	l.lastScan = l.now()
	l.mu.Unlock()

	if first || moved {
		l.log.Info("target", "x", m.Point.X, "y", m.Point.Y, "score", m.Score)
	} else {
		l.log.Debug("target refreshed", "x", m.Point.X, "y", m.Point.Y, "score", m.Score)
	}
	return true
}

// jitter shifts the target by a uniform offset in [-Offset, Offset] per
// axis, clamped to non-negative screen coordinates.
func (l *Loop) jitter(p image.Point) image.Point {
	if o := l.cfg.Offset; o > 0 {
		p.X += l.rnd.Intn(2*o+1) - o
		p.Y += l.rnd.Intn(2*o+1) - o
	}
	if p.X < 0 {
		p.X = 0
	}
	if p.Y < 0 {
		p.Y = 0
	}
	return p
}

// wait sleeps the randomized inter-click delay.
func (l *Loop) wait(ctx context.Context) error {
	d := l.cfg.MinDelay
	if span := l.cfg.MaxDelay - l.cfg.MinDelay; span > 0 {
		d += time.Duration(l.rnd.Float64() * float64(span))
	}
	return l.sleep(ctx, d)
}

func (l *Loop) finish(reason string, cause error) error {
	l.mu.Lock()
	l.stats.Termination = reason
	if cause != nil && !errors.Is(cause, context.Canceled) {
		l.stats.LastError = cause.Error()
	}
	stats := l.stats
	l.mu.Unlock()
	l.log.Info("loop finished",
		"reason", reason,
		"iterations", stats.Iterations,
		"clicks", stats.Clicks,
		"scans", stats.Scans)
	return nil
}

// defaultSleep blocks for d or until the context ends.
func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
