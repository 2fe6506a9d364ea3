// gesturectl is the control CLI for gesturelock.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"

	"gesturelock/internal/config"
	"gesturelock/internal/geometry"
	"gesturelock/internal/gesture"
	"gesturelock/internal/kv"
	"gesturelock/internal/lockout"
	"gesturelock/internal/logging"
	"gesturelock/internal/vault"
)

var (
	configPath  = flag.String("config", "", "path to config file")
	showMetrics = flag.Bool("metrics", false, "print metrics after verify and replay")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	switch cmd {
	case "status":
		cmdStatus()
	case "layout":
		cmdLayout()
	case "score":
		need(args, 1, "score <seq>")
		cmdScore(args[0])
	case "set":
		need(args, 1, "set <seq>")
		cmdSet(args[0])
	case "verify":
		need(args, 1, "verify <seq>")
		cmdVerify(args[0])
	case "remove":
		cmdRemove()
	case "unlock":
		cmdUnlock()
	case "export":
		output := ""
		if len(args) >= 1 {
			output = args[0]
		}
		cmdExport(output)
	case "import":
		need(args, 1, "import <file>")
		cmdImport(args[0])
	case "gestures":
		cmdGestures(args)
	case "question":
		need(args, 2, "question <question> <answer>")
		cmdQuestion(args[0], args[1])
	case "send-code":
		cmdSendCode(args)
	case "verify-code":
		need(args, 1, "verify-code <code>")
		cmdVerifyCode(args[0])
	case "reset":
		cmdReset(args)
	case "replay":
		cmdReplay(args)
	case "prefs":
		cmdPrefs(args)
	case "config":
		cmdConfig(args)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `gesturectl - Control utility for gesturelock

Usage: gesturectl [options] <command> [args]

Commands:
  status                     Show enrollment, lockout and storage status
  layout                     Print node positions for the configured grid
  score <seq>                Rate a pattern, e.g. score 1,2,3,6,9
  set <seq>                  Store a new pattern
  verify <seq>               Check a pattern, counting failures toward lockout
  remove                     Delete the stored pattern
  unlock                     Clear an active lockout
  export [out.json]          Export the stored pattern as a shareable record
  import <file>              Replace the stored pattern from a record
  gestures [list|add|export|import|delete]
                             Manage saved custom gestures
  question <q> <answer>      Set the recovery question
  send-code [-channel c] <target>
                             Send a verification code
  verify-code <code>         Check a verification code
  reset (-code c | -answer a) <seq>
                             Replace the pattern after proving identity
  replay [-speed n] <trajectory.json>
                             Replay a recorded gesture and print the result
  prefs [key=value ...]      Show or change preferences
  config [init|validate]     Show, create or validate the configuration
  help                       Show this help message

Options:
  -config <path>  Path to config file (default: ~/.config/gesturelock/config.toml)
  -metrics        Print metrics after verify and replay`)
}

func need(args []string, n int, form string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "Usage: gesturectl %s\n", form)
		os.Exit(1)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// app bundles what most commands need.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	log    *logging.Logger
	store  kv.Store
	vault  *vault.Vault
	audit  *logging.AuditLogger
	clock  clockwork.Clock
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fail("loading config: %v", err)
	}
	return cfg
}

func openApp() *app {
	cfg := loadConfig()
	if err := cfg.EnsureDirectories(); err != nil {
		fail("%v", err)
	}

	log, err := logging.New(logging.FromConfig(cfg.Logging, "gesturectl"))
	if err != nil {
		fail("creating logger: %v", err)
	}
	logging.SetDefault(log)

	store, err := kv.Open(cfg.Storage)
	if err != nil {
		fail("opening storage: %v", err)
	}

	var audit *logging.AuditLogger
	if cfg.Audit.Enabled {
		audit, err = logging.NewAuditLogger(logging.AuditConfigFrom(cfg.Audit, "gesturectl"))
		if err != nil {
			fail("opening audit log: %v", err)
		}
	}

	clock := clockwork.NewRealClock()
	return &app{
		cfg:    cfg,
		logger: log.Logger,
		log:    log,
		store:  store,
		vault:  vault.New(store, clock, log.Logger),
		audit:  audit,
		clock:  clock,
	}
}

func (a *app) close() {
	_ = a.audit.Close()
	_ = kv.Close(a.store)
	_ = a.log.Close()
}

func (a *app) grid() *geometry.Grid {
	g, err := geometry.Layout(gesture.SpecFromConfig(a.cfg.Grid))
	if err != nil {
		fail("grid layout: %v", err)
	}
	return g
}

// policy returns a lockout policy with any persisted lock restored.
func (a *app) policy() *lockout.Policy {
	p := lockout.New(lockout.ConfigFrom(a.cfg.Lockout), a.store, a.clock, a.logger)
	if _, err := p.Rehydrate(); err != nil {
		fail("reading lockout state: %v", err)
	}
	return p
}

// parseSeq accepts node indices separated by commas, dashes or spaces.
func parseSeq(s string, rows int) []int {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '-' || r == ' '
	})
	if len(fields) == 0 {
		fail("empty pattern")
	}

	seq := make([]int, 0, len(fields))
	seen := make(map[int]bool, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			fail("invalid node %q", f)
		}
		if n < 1 || n > rows*rows {
			fail("node %d outside a %dx%d grid", n, rows, rows)
		}
		if seen[n] {
			fail("node %d repeated", n)
		}
		seen[n] = true
		seq = append(seq, n)
	}
	return seq
}

func formatSeq(seq []int) string {
	parts := make([]string, len(seq))
	for i, n := range seq {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "-")
}
