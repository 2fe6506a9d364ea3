package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gesturelock/internal/config"
	"gesturelock/internal/security"
	"gesturelock/internal/vault"
)

func cmdGestures(args []string) {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	a := openApp()
	defer a.close()
	ctx := context.Background()

	switch sub {
	case "list":
		list, err := a.vault.Gestures()
		if err != nil {
			fail("loading gestures: %v", err)
		}
		if len(list) == 0 {
			fmt.Println("No saved gestures")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCODE\tGRID\tPATTERN\tCREATED")
		for _, g := range list {
			created := "-"
			if g.CreatedAt > 0 {
				created = time.UnixMilli(g.CreatedAt).Format("2006-01-02")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%s\t%s\n",
				g.ID, g.Name, g.ShareCode, g.Rows, g.Rows, formatSeq(g.Gesture), created)
		}
		_ = w.Flush()

	case "add":
		need(args, 2, "gestures add <name> <seq> [description]")
		desc := ""
		if len(args) > 2 {
			desc = strings.Join(args[2:], " ")
		}
		seq := parseSeq(args[1], a.cfg.Grid.Rows)
		g, err := a.vault.CreateGesture(args[0], desc, seq, a.cfg.Grid.Rows)
		if err != nil {
			fail("saving gesture: %v", err)
		}
		fmt.Printf("Gesture %q saved (id %s, share code %s)\n", g.Name, g.ID, g.ShareCode)

	case "export":
		need(args, 1, "gestures export <id|code> [out.json]")
		g := findGesture(a, args[0])
		data, err := a.vault.Export(g.ID)
		if err != nil {
			fail("exporting gesture: %v", err)
		}
		_ = a.audit.LogExport(ctx, "gesture")
		if len(args) < 2 {
			fmt.Println(string(data))
			return
		}
		if err := security.WriteSecretFile(args[1], data); err != nil {
			fail("writing %s: %v", args[1], err)
		}
		fmt.Printf("Gesture exported to: %s\n", args[1])

	case "import":
		need(args, 1, "gestures import <file>")
		data, err := security.ReadSecretFile(args[0], maxRecordSize)
		if err != nil {
			fail("reading %s: %v", args[0], err)
		}
		g, err := a.vault.Import(data)
		_ = a.audit.LogImport(ctx, "gesture", err)
		if err != nil {
			fail("importing gesture: %v", err)
		}
		fmt.Printf("Gesture %q imported (id %s)\n", g.Name, g.ID)

	case "delete":
		need(args, 1, "gestures delete <id|code>")
		g := findGesture(a, args[0])
		if err := a.vault.DeleteGesture(g.ID); err != nil {
			fail("deleting gesture: %v", err)
		}
		fmt.Printf("Gesture %q deleted\n", g.Name)

	default:
		fail("unknown gestures command %q", sub)
	}
}

// findGesture looks ref up as an id, then as a share code.
func findGesture(a *app, ref string) *vault.Gesture {
	g, err := a.vault.Gesture(ref)
	if errors.Is(err, vault.ErrGestureNotFound) {
		g, err = a.vault.GestureByShareCode(ref)
	}
	if err != nil {
		fail("%s: %v", ref, err)
	}
	return g
}

func cmdPrefs(args []string) {
	a := openApp()
	defer a.close()

	if len(args) == 1 && args[0] == "reset" {
		if err := a.vault.ResetPreferences(); err != nil {
			fail("%v", err)
		}
		fmt.Println("Preferences reset")
		return
	}

	p, err := a.vault.Preferences()
	if err != nil {
		fail("loading preferences: %v", err)
	}

	if len(args) == 0 {
		fmt.Printf("theme    %s\n", p.Theme)
		fmt.Printf("grid     %d\n", p.GridSize)
		fmt.Printf("sound    %t\n", p.Sound)
		fmt.Printf("vibrate  %t\n", p.Vibrate)
		return
	}

	old := p
	for _, pair := range args {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			fail("expected key=value, got %q", pair)
		}
		switch key {
		case "theme":
			p.Theme = value
		case "grid":
			n, err := strconv.Atoi(value)
			if err != nil {
				fail("grid: %v", err)
			}
			p.GridSize = n
		case "sound", "vibrate":
			b, err := strconv.ParseBool(value)
			if err != nil {
				fail("%s: %v", key, err)
			}
			if key == "sound" {
				p.Sound = b
			} else {
				p.Vibrate = b
			}
		default:
			fail("unknown preference %q", key)
		}
	}

	if err := a.vault.SavePreferences(p); err != nil {
		fail("%v", err)
	}
	_ = a.audit.LogConfigChange(context.Background(), "preferences", fmt.Sprintf("%+v", old), fmt.Sprintf("%+v", p))
	fmt.Println("Preferences saved")
}

func cmdConfig(args []string) {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "show":
		fmt.Print(loadConfig().String())
	case "init":
		path := *configPath
		if path == "" {
			path = config.ConfigPath()
		}
		cfg, created, err := config.LoadOrCreate(path)
		if err != nil {
			fail("%v", err)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			fail("%v", err)
		}
		if created {
			fmt.Printf("Created %s\n", path)
		} else {
			fmt.Printf("%s already exists\n", path)
		}
	case "validate":
		cfg, err := config.Load(*configPath)
		if err != nil {
			fail("%v", err)
		}
		if err := config.ValidateConfig(cfg); err != nil {
			fail("%v", err)
		}
		fmt.Println("Configuration OK")
	default:
		fail("unknown config command %q", sub)
	}
}
