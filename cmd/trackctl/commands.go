package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"investtracker/internal/app"
	"investtracker/internal/config"
	"investtracker/internal/logging"
	"investtracker/pkg/tracker"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var globals struct {
	configPath string
	dataDir    string
	logLevel   string
}

var commands = []subcommands.Command{
	&refreshCmd{},
	&importCmd{},
	&remapCmd{},
	&snapshotCmd{},
	&warningsCmd{},
	&purgeCmd{},
}

// withTracker loads the config, wires the app and runs fn against the
// portfolio id. An empty id means the first configured portfolio.
func withTracker(ctx context.Context, id string, fn func(*tracker.Tracker) error) subcommands.ExitStatus {
	if globals.dataDir != "" {
		config.SetRuntimeDataDir(globals.dataDir)
	}
	cfg, err := config.Load(globals.configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: "15:04:05"}).
		Level(logging.ParseLevel(globals.logLevel)).
		With().Timestamp().Logger()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if id == "" {
		id = cfg.Portfolios[0].ID
	}
	t, err := a.Tracker(id)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	if err := fn(t); err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type refreshCmd struct {
	portfolio string
}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "run a full refresh cycle and print the totals" }
func (*refreshCmd) Usage() string {
	return `trackctl refresh [-p <portfolio>]

  Replays transactions, resolves symbols, fetches quotes and stores a new
  snapshot.
`
}

func (c *refreshCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "p", "", "Portfolio id (defaults to the first configured portfolio)")
}

func (c *refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withTracker(ctx, c.portfolio, func(t *tracker.Tracker) error {
		snap, err := t.Refresh(ctx)
		if err != nil {
			return err
		}
		printTotals(stdout, snap)
		return nil
	})
}

type importCmd struct {
	portfolio string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import the CSV files waiting in the portfolio's import_dir" }
func (*importCmd) Usage() string {
	return `trackctl import [-p <portfolio>]

  Parses every CSV in import_dir. <broker>_transactions.csv files are
  transaction logs, other files are position snapshots. Imported files are
  renamed to <name>.processed.<unix-ts>.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "p", "", "Portfolio id")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withTracker(ctx, c.portfolio, func(t *tracker.Tracker) error {
		res, err := t.Import(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Imported %d positions and %d transactions from %d files\n", res.Positions, res.Transactions, len(res.Files))
		return nil
	})
}

type remapCmd struct {
	portfolio string
	symbol    string
	broker    string
	ticker    string
	category  string
	manual    bool
}

func (*remapCmd) Name() string     { return "remap" }
func (*remapCmd) Synopsis() string { return "override the market ticker or category of a symbol" }
func (*remapCmd) Usage() string {
	return `trackctl remap -symbol <symbol> [-ticker <ticker>] [-category <type>] [-broker <broker>] [-manual] [-p <portfolio>]

  Without -broker the override applies to every broker holding the symbol.
  A refresh runs when something changed.
`
}

func (c *remapCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "p", "", "Portfolio id")
	f.StringVar(&c.symbol, "symbol", "", "Broker symbol to remap")
	f.StringVar(&c.broker, "broker", "", "Restrict the override to one broker")
	f.StringVar(&c.ticker, "ticker", "", "Market data ticker")
	f.StringVar(&c.category, "category", "", "Asset type ("+assetTypeNames()+")")
	f.BoolVar(&c.manual, "manual", false, "Pin the category against automatic classification")
}

func (c *remapCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withTracker(ctx, c.portfolio, func(t *tracker.Tracker) error {
		res, err := t.RemapSymbol(ctx, tracker.RemapRequest{
			Symbol:   c.symbol,
			Broker:   c.broker,
			Ticker:   c.ticker,
			Category: c.category,
			Manual:   c.manual,
		})
		if err != nil {
			return err
		}
		if !res.Changed {
			fmt.Fprintln(stdout, "Nothing changed")
			return nil
		}
		fmt.Fprintf(stdout, "Remapped %s\n", strings.ToUpper(c.symbol))
		if res.Snapshot != nil {
			printTotals(stdout, *res.Snapshot)
		}
		return nil
	})
}

type snapshotCmd struct {
	portfolio string
	asJSON    bool
}

func (*snapshotCmd) Name() string     { return "snapshot" }
func (*snapshotCmd) Synopsis() string { return "print the last stored snapshot" }
func (*snapshotCmd) Usage() string {
	return `trackctl snapshot [-p <portfolio>] [-json]

  Prints the assets and totals of the last successful refresh without
  contacting any provider.
`
}

func (c *snapshotCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "p", "", "Portfolio id")
	f.BoolVar(&c.asJSON, "json", false, "Print the snapshot as JSON")
}

func (c *snapshotCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withTracker(ctx, c.portfolio, func(t *tracker.Tracker) error {
		snap, ok := t.Snapshot()
		if !ok {
			return tracker.NewError(tracker.ErrCodeNotFound, "no snapshot stored yet; run trackctl refresh")
		}
		if c.asJSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		printSnapshot(stdout, snap)
		return nil
	})
}

type warningsCmd struct {
	portfolio string
}

func (*warningsCmd) Name() string     { return "warnings" }
func (*warningsCmd) Synopsis() string { return "list symbols that need a manual mapping" }
func (*warningsCmd) Usage() string {
	return `trackctl warnings [-p <portfolio>]
`
}

func (c *warningsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "p", "", "Portfolio id")
}

func (c *warningsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withTracker(ctx, c.portfolio, func(t *tracker.Tracker) error {
		warnings, err := t.Warnings(ctx)
		if err != nil {
			return err
		}
		if len(warnings) == 0 {
			fmt.Fprintln(stdout, "No open warnings")
			return nil
		}
		for _, w := range warnings {
			suggestions := make([]string, 0, len(w.Suggestions))
			for _, s := range w.Suggestions {
				suggestions = append(suggestions, s.Symbol)
			}
			line := fmt.Sprintf("%s (%s) is unmapped", w.Symbol, w.Name)
			if len(suggestions) > 0 {
				line += "; try " + strings.Join(suggestions, ", ")
			}
			fmt.Fprintln(stdout, line)
		}
		return nil
	})
}

type purgeCmd struct {
	portfolio string
	before    string
	days      int
}

func (*purgeCmd) Name() string     { return "purge" }
func (*purgeCmd) Synopsis() string { return "delete stored snapshots older than a cutoff" }
func (*purgeCmd) Usage() string {
	return `trackctl purge (-before <YYYY-MM-DD> | -days <n>) [-p <portfolio>]

  The most recent snapshot is always kept.
`
}

func (c *purgeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "p", "", "Portfolio id")
	f.StringVar(&c.before, "before", "", "Delete snapshots computed before this date")
	f.IntVar(&c.days, "days", 0, "Delete snapshots older than this many days")
}

func (c *purgeCmd) cutoff(now time.Time) (time.Time, error) {
	switch {
	case c.before != "":
		t, err := time.Parse(time.DateOnly, c.before)
		if err != nil {
			return time.Time{}, tracker.WrapError(tracker.ErrCodeInvalidInput, "parse -before", err)
		}
		return t, nil
	case c.days > 0:
		return now.AddDate(0, 0, -c.days), nil
	default:
		return time.Time{}, tracker.NewError(tracker.ErrCodeInvalidInput, "one of -before or -days is required")
	}
}

func (c *purgeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cutoff, err := c.cutoff(time.Now())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitUsageError
	}
	return withTracker(ctx, c.portfolio, func(t *tracker.Tracker) error {
		n, err := t.DeleteHistory(ctx, cutoff)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Deleted %d snapshots\n", n)
		return nil
	})
}

func printTotals(w io.Writer, snap tracker.Snapshot) {
	cur := snap.BaseCurrency
	fmt.Fprintf(w, "Total value:      %s\n", tracker.FormatMoney(snap.Totals.TotalValue, cur))
	fmt.Fprintf(w, "Active invested:  %s\n", tracker.FormatMoney(snap.Totals.TotalActiveInvested, cur))
	fmt.Fprintf(w, "Realized P/L:     %s\n", tracker.FormatMoney(snap.Totals.TotalProfitLossRealized, cur))
	fmt.Fprintf(w, "Unrealized P/L:   %s\n", tracker.FormatMoney(snap.Totals.TotalProfitLossUnrealized, cur))
	fmt.Fprintf(w, "Total P/L:        %s (%s%%)\n", tracker.FormatMoney(snap.Totals.TotalProfitLoss, cur), snap.Totals.TotalProfitLossPct.StringFixed(2))
	if len(snap.UnmappedSymbols) > 0 {
		fmt.Fprintf(w, "Unmapped:         %s\n", strings.Join(snap.UnmappedSymbols, ", "))
	}
}

func printSnapshot(w io.Writer, snap tracker.Snapshot) {
	header := fmt.Sprintf("Portfolio %s (%s) computed %s", snap.PortfolioID, snap.BaseCurrency, snap.ComputedAt.Format(time.RFC3339))
	if snap.Stale {
		header += " [stale: " + snap.LastError + "]"
	}
	fmt.Fprintln(w, header)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SYMBOL\tBROKER\tTYPE\tQTY\tPRICE\tVALUE\tP/L\t")
	for _, a := range snap.Assets {
		price, value, pl := "-", "-", "-"
		if a.CurrentPrice != nil {
			price = strconv.FormatFloat(*a.CurrentPrice, 'f', 2, 64)
		}
		if a.MarketValue != nil {
			value = tracker.FormatMoney(*a.MarketValue, snap.BaseCurrency)
		}
		if a.ProfitLossAbs != nil {
			pl = tracker.FormatMoney(*a.ProfitLossAbs, snap.BaseCurrency)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			a.Symbol, a.Broker, a.Type, strconv.FormatFloat(a.Quantity, 'f', -1, 64), price, value, pl)
	}
	_ = tw.Flush()
	printTotals(w, snap)
}

func assetTypeNames() string {
	names := make([]string, 0, len(tracker.AssetTypes))
	for _, t := range tracker.AssetTypes {
		names = append(names, string(t))
	}
	return strings.Join(names, "|")
}
