package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/subcommands"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/di"
	"github.com/aristath/folio/internal/modules/brokersync"
	"github.com/aristath/folio/internal/modules/settings"
	"github.com/aristath/folio/pkg/logger"
)

var commands = []subcommands.Command{
	&syncCmd{},
	&statusCmd{},
	&valuationCmd{},
	&settingsCmd{},
	&snapshotCmd{},
}

// open loads configuration and wires the container. Logs go to stderr so
// stdout stays machine readable.
func open(ctx context.Context, verbose bool) (*di.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if verbose {
		level = cfg.LogLevel
	}
	log := logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})

	return di.Wire(ctx, cfg, log)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type syncCmd struct {
	verbose bool
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "pull positions and trades from the broker now" }
func (*syncCmd) Usage() string {
	return `sync [-v]

  Runs one broker sync attempt and prints its result.
  Exits non-zero when the attempt was rejected or failed.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.verbose, "v", false, "Log progress to stderr")
}

func (c *syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	container, err := open(ctx, c.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	result := container.Orchestrator.TriggerManual(ctx)
	if err := printJSON(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return syncExitStatus(result.Status)
}

func syncExitStatus(status brokersync.Status) subcommands.ExitStatus {
	if status == brokersync.StatusOK {
		return subcommands.ExitSuccess
	}
	return subcommands.ExitFailure
}

type statusCmd struct{}

func (*statusCmd) Name() string     { return "status" }
func (*statusCmd) Synopsis() string { return "show the broker integration and last sync" }
func (*statusCmd) Usage() string {
	return `status

  Prints the integration flags, the last committed sync and the sync state.
`
}

func (*statusCmd) SetFlags(*flag.FlagSet) {}

func (*statusCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	container, err := open(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	view, err := container.Orchestrator.Status(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := printJSON(view); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type valuationCmd struct{}

func (*valuationCmd) Name() string     { return "valuation" }
func (*valuationCmd) Synopsis() string { return "print the current portfolio valuation" }
func (*valuationCmd) Usage() string {
	return `valuation

  Prints invested value, cash, BTC and the total.
`
}

func (*valuationCmd) SetFlags(*flag.FlagSet) {}

func (*valuationCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	container, err := open(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	valuation, err := container.PortfolioService.GetValuation(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := printJSON(valuation); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type settingsCmd struct{}

func (*settingsCmd) Name() string     { return "settings" }
func (*settingsCmd) Synopsis() string { return "show or change settings" }
func (*settingsCmd) Usage() string {
	keys := make([]string, 0, len(settings.SettingKinds))
	for key := range settings.SettingKinds {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return fmt.Sprintf(`settings [key=value ...]

  Without arguments prints the current settings.
  With arguments applies them and prints the result.

  Keys: %s
`, strings.Join(keys, ", "))
}

func (*settingsCmd) SetFlags(*flag.FlagSet) {}

func (*settingsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	updates, err := parseAssignments(f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	container, err := open(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	var current *settings.PortfolioSettings
	if len(updates) == 0 {
		current, err = container.SettingsService.Get(ctx)
	} else {
		current, err = container.SettingsService.Update(ctx, updates)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := printJSON(current); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// parseAssignments turns key=value arguments into a settings update.
// Values stay strings; the settings service coerces them per key.
func parseAssignments(args []string) (map[string]interface{}, error) {
	updates := make(map[string]interface{}, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		if !settings.IsKnownKey(key) {
			return nil, fmt.Errorf("unknown setting %q", key)
		}
		updates[key] = value
	}
	return updates, nil
}

type snapshotCmd struct{}

func (*snapshotCmd) Name() string     { return "snapshot" }
func (*snapshotCmd) Synopsis() string { return "print the newest raw broker snapshot" }
func (*snapshotCmd) Usage() string {
	return `snapshot

  Prints the holdings and orders exactly as the last sync received them.
`
}

func (*snapshotCmd) SetFlags(*flag.FlagSet) {}

func (*snapshotCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	container, err := open(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	snap, err := latestSnapshot(ctx, container.Archive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := printJSON(snap); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

var errNoSnapshot = errors.New("no snapshot archived yet")

func latestSnapshot(ctx context.Context, archive *brokersync.Archive) (*brokersync.RawSnapshot, error) {
	snap, err := archive.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errNoSnapshot
	}
	return snap, nil
}
