package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gesturelock/internal/gesture"
	"gesturelock/internal/metrics"
	"gesturelock/internal/security"
	"gesturelock/internal/tracker"
	"gesturelock/internal/trajectory"
)

func cmdReplay(args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	speed := fs.Float64("speed", 0, "playback speed multiplier (default from config)")
	_ = fs.Parse(args)
	need(fs.Args(), 1, "replay [-speed n] <trajectory.json>")

	a := openApp()
	defer a.close()

	data, err := security.ReadSecretFile(fs.Arg(0), maxRecordSize)
	if err != nil {
		fail("reading %s: %v", fs.Arg(0), err)
	}
	points, err := trajectory.Decode(data)
	if err != nil {
		fail("decoding trajectory: %v", err)
	}

	reg := metrics.NewRegistry("gesturelock")
	lock, err := gesture.New(gesture.Options{
		Grid:          a.grid(),
		PlaybackSpeed: a.cfg.Trajectory.PlaybackSpeed,
		Clock:         a.clock,
		Logger:        a.logger,
		Metrics:       metrics.NewLockMetrics(reg),
	})
	if err != nil {
		fail("%v", err)
	}
	defer lock.Close()

	seen := 0
	lock.SetHooks(gesture.Hooks{
		OnProgress: func(s tracker.Snapshot) {
			for _, n := range s.Sequence[min(seen, len(s.Sequence)):] {
				fmt.Printf("  node %d\n", n)
			}
			seen = len(s.Sequence)
		},
	})

	p, err := lock.Play(points, *speed)
	if err != nil {
		fail("starting playback: %v", err)
	}
	fmt.Printf("Replaying %d samples, %s apart\n", p.Len(), p.Interval())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	outcome := p.Run(ctx)

	fmt.Printf("Playback %s\n", outcome)
	if seq := p.Sequence(); len(seq) > 0 {
		fmt.Printf("Pattern: %s\n", formatSeq(seq))
	}
	if *showMetrics {
		_ = reg.WritePrometheus(os.Stderr)
	}
	if outcome != trajectory.OutcomeCompleted {
		lock.Close()
		a.close()
		os.Exit(1)
	}
}
