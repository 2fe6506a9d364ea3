package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gesturelock/internal/complexity"
	"gesturelock/internal/geometry"
	"gesturelock/internal/gesture"
	"gesturelock/internal/metrics"
	"gesturelock/internal/security"
	"gesturelock/internal/tracker"
	"gesturelock/internal/vault"
	"gesturelock/internal/verifycode"
)

// maxRecordSize bounds files read by import and replay.
const maxRecordSize = 1 << 20

func cmdStatus() {
	a := openApp()
	defer a.close()

	fmt.Println("=== gesturelock Status ===")
	fmt.Println()

	fmt.Println("Pattern:")
	set, err := a.vault.IsSet()
	switch {
	case err != nil:
		fmt.Printf("  Error reading storage: %v\n", err)
	case !set:
		fmt.Println("  NOT SET")
	default:
		rec, err := a.vault.Get()
		if err != nil {
			fmt.Printf("  Error reading pattern: %v\n", err)
		} else {
			fmt.Printf("  SET (%d nodes)\n", len(rec.Password))
			fmt.Printf("  Updated: %s\n", time.UnixMilli(rec.UpdatedAt).Format(time.RFC3339))
		}
	}
	fmt.Println()

	p := a.policy()
	defer p.Close()
	st := p.State()
	fmt.Println("Lockout:")
	if st.Locked {
		fmt.Printf("  LOCKED for %s (until %s)\n", p.Remaining().Round(time.Second), st.LockedUntil.Format(time.RFC3339))
	} else {
		fmt.Printf("  Unlocked, %d of %d attempts left\n", p.AttemptsLeft(), p.Config().MaxAttempts)
	}
	fmt.Println()

	fmt.Println("Recovery:")
	if prof, err := a.vault.SecurityProfile(); err == nil {
		fmt.Printf("  Question: %s\n", prof.Question)
	} else {
		fmt.Println("  No security question")
	}
	codes := verifycode.New(verifycode.ConfigFrom(a.cfg.VerificationCode), a.store, nil, a.clock, a.logger)
	if left := codes.Remaining(); left > 0 {
		fmt.Printf("  Verification code valid for %s\n", left.Round(time.Second))
	}
	fmt.Println()

	fmt.Println("Storage:")
	fmt.Printf("  Backend: %s\n", a.cfg.Storage.Type)
	if a.cfg.Storage.Path != "" && a.cfg.Storage.Type != "memory" {
		fmt.Printf("  Path: %s\n", a.cfg.Storage.Path)
		if info, err := os.Stat(a.cfg.Storage.Path); err == nil {
			fmt.Printf("  Size: %s\n", formatBytes(info.Size()))
		}
	}
	fmt.Printf("  Grid: %dx%d\n", a.cfg.Grid.Rows, a.cfg.Grid.Rows)
}

func cmdLayout() {
	cfg := loadConfig()
	g, err := geometry.Layout(gesture.SpecFromConfig(cfg.Grid))
	if err != nil {
		fail("grid layout: %v", err)
	}

	fmt.Printf("Grid %dx%d, container %.0f units = %.1f px\n", g.Rows(), g.Rows(), cfg.Grid.ContainerSize, g.Size())
	fmt.Printf("%-6s %-10s %-10s %-8s\n", "Node", "X (px)", "Y (px)", "Radius")
	for _, n := range g.Nodes() {
		fmt.Printf("%-6d %-10.1f %-10.1f %-8.1f\n", n.Index, n.Center.X, n.Center.Y, n.Radius)
	}
}

func cmdScore(arg string) {
	cfg := loadConfig()
	seq := parseSeq(arg, cfg.Grid.Rows)
	r := complexity.Score(seq, cfg.Grid.Rows)

	fmt.Printf("Pattern:    %s\n", formatSeq(seq))
	fmt.Printf("Score:      %d (%s)\n", r.Score, r.Level)
	fmt.Printf("  length      %5.1f\n", r.Breakdown.LengthPoints)
	fmt.Printf("  uniqueness  %5.1f\n", r.Breakdown.UniquenessPoints)
	fmt.Printf("  pattern     %5.1f  (%d diagonal, %d long, %d adjacent)\n",
		r.Breakdown.PatternPoints, r.Breakdown.Diagonal, r.Breakdown.Long, r.Breakdown.Adjacent)
	fmt.Println()
	fmt.Println(r.Guidance)
}

func cmdSet(arg string) {
	a := openApp()
	defer a.close()

	seq := parseSeq(arg, a.cfg.Grid.Rows)
	if len(seq) < a.cfg.Enrollment.MinNodes {
		fail("pattern needs at least %d nodes", a.cfg.Enrollment.MinNodes)
	}

	ctx := context.Background()
	if err := a.vault.Save(seq); err != nil {
		_ = a.audit.LogEnrollment(ctx, "set", false)
		fail("saving pattern: %v", err)
	}
	_ = a.audit.LogEnrollment(ctx, "set", true)

	r := complexity.Score(seq, a.cfg.Grid.Rows)
	fmt.Printf("Pattern saved (%d nodes, complexity %d %s)\n", len(seq), r.Score, r.Level)
}

func cmdVerify(arg string) {
	a := openApp()
	defer a.close()

	seq := parseSeq(arg, a.cfg.Grid.Rows)
	reg := metrics.NewRegistry("gesturelock")
	lock, err := gesture.New(gesture.Options{
		Grid:     a.grid(),
		Verifier: a.vault,
		Policy:   a.policy(),
		Clock:    a.clock,
		Logger:   a.logger,
		Metrics:  metrics.NewLockMetrics(reg),
		Audit:    a.audit,
	})
	if err != nil {
		fail("%v", err)
	}
	defer lock.Close()

	if st := lock.Status(); st.Lockout.Locked {
		fmt.Printf("LOCKED: try again in %s\n", st.Remaining.Round(time.Second))
		os.Exit(1)
	}

	c := drawSequence(lock, seq)
	if *showMetrics {
		_ = reg.WritePrometheus(os.Stderr)
	}

	switch c.Outcome {
	case gesture.OutcomeSuccess:
		fmt.Println("✓ Pattern accepted")
	case gesture.OutcomeFailure:
		fmt.Println("✗ Pattern rejected")
		if st := lock.Status(); st.Lockout.Locked {
			fmt.Printf("  Too many failures, locked for %s\n", st.Remaining.Round(time.Second))
		} else {
			fmt.Printf("  %d attempts left\n", c.AttemptsLeft)
		}
		lock.Close()
		os.Exit(1)
	case gesture.OutcomeNotEnrolled:
		fail("no pattern set")
	default:
		fail("verification failed: %v", c.Err)
	}
}

// drawSequence feeds lock a drag through the centers of seq.
func drawSequence(lock *gesture.Lock, seq []int) gesture.Completion {
	g := lock.Grid()
	at := func(idx int) tracker.Pointer {
		n, _ := g.Node(idx)
		return tracker.Pointer{Position: n.Center}
	}

	lock.PointerDown(at(seq[0]))
	for _, idx := range seq[1:] {
		lock.PointerMove(at(idx))
	}
	c, _ := lock.PointerUp(at(seq[len(seq)-1]))
	return c
}

func cmdRemove() {
	a := openApp()
	defer a.close()

	if err := a.vault.Remove(); err != nil {
		fail("removing pattern: %v", err)
	}
	_ = a.audit.LogEnrollment(context.Background(), "remove", true)
	fmt.Println("Pattern removed")
}

func cmdUnlock() {
	a := openApp()
	defer a.close()

	p := a.policy()
	defer p.Close()
	if !p.State().Locked {
		fmt.Println("Not locked")
		return
	}
	p.Unlock()
	_ = a.audit.LogUnlock(context.Background(), "manual")
	fmt.Println("Lockout cleared")
}

func cmdExport(output string) {
	a := openApp()
	defer a.close()

	data, err := a.vault.ExportSecret(a.cfg.Grid.Rows)
	if err != nil {
		fail("exporting pattern: %v", err)
	}
	_ = a.audit.LogExport(context.Background(), "pattern")

	if output == "" {
		fmt.Println(string(data))
		return
	}
	if err := security.WriteSecretFile(output, data); err != nil {
		fail("writing %s: %v", output, err)
	}
	fmt.Printf("Pattern exported to: %s\n", output)
}

func cmdImport(path string) {
	a := openApp()
	defer a.close()

	data, err := security.ReadSecretFile(path, maxRecordSize)
	if err != nil {
		fail("reading %s: %v", path, err)
	}

	seq, err := a.vault.ImportSecret(data, a.cfg.Grid.Rows)
	_ = a.audit.LogImport(context.Background(), "pattern", err)
	if errors.Is(err, vault.ErrIncompatibleRows) {
		fail("%v (configured grid is %dx%d)", err, a.cfg.Grid.Rows, a.cfg.Grid.Rows)
	}
	if err != nil {
		fail("importing pattern: %v", err)
	}
	fmt.Printf("Pattern imported (%d nodes)\n", len(seq))
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
