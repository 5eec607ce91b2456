// Command scorectl keeps a mahjong score table from the terminal. It shares the engine, the
// persistence format and the stores with the Nakama module.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"mjscore/internal/app"
	"mjscore/internal/config"
	"mjscore/internal/domain"
	"mjscore/internal/ports"
	"mjscore/internal/report"
	"mjscore/internal/storage/redisstore"
	"mjscore/internal/storage/sqlite"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"
)

const usageText = `usage: scorectl [flags] <command> [args]

players are given by id or name

  show                              table, claims and dealer
  history [n]                       newest n entries
  zimo <winner> <fan>               self-draw
  win <winner> <loser> <fan>        win off a discard
  multi <loser> <w>:<fan> ...       one discard, two or three winners
  collect <player> <amount>         flat payment from every opponent
  pay <player> <amount>             flat payment to every opponent
  zhahu <player> <opp>=<amount> ... false win, custom payouts
  forfeit <loser>                   surrender the current winner's claim
  preview <event command> ...       show the outcome without committing
  undo                              revert the newest entry
  reset                             clear scores and history
  dealer <player>                   hand the deal
  bump                              add a streak round without a win
  pop on|off                        clear other claims when a new winner takes over
  seat <player> ...                 reorder the table
  rename <player> <name>            change a display name
  stats                             standings and statistics
  payout <divisor> [<p>=<adj> ...]  convert totals to money
  export [file]                     history as CSV
  tables                            list stored tables (sqlite)
`

func main() {
	table := flag.String("table", "", "table id (default $MJSCORE_TABLE)")
	yes := flag.Bool("yes", false, "accept takeover resets without asking")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(context.Background(), *table, *yes, flag.Args()); err != nil {
		pterm.Error.Println(err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type backend struct {
	store  ports.BlobStore
	close  func() error
	tables func(ctx context.Context) ([]string, error)
}

func openBackend(ctx context.Context, cfg config.CLIConfig, tableID string) (*backend, error) {
	switch cfg.Store {
	case config.StoreRedis:
		st, err := redisstore.Open(ctx, cfg.RedisURL, "", 0)
		if err != nil {
			return nil, err
		}
		return &backend{store: st.Table(tableID), close: st.Close}, nil
	default:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &backend{store: st.Table(tableID), close: st.Close, tables: st.Tables}, nil
	}
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.Warnf("unknown log level %q, using warn", level)
		lvl = logrus.WarnLevel
	}
	log.SetLevel(lvl)
	return log
}

func run(ctx context.Context, tableID string, yes bool, args []string) error {
	cfg, err := config.LoadCLIConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)
	if tableID == "" {
		tableID = cfg.Table
	}
	if cfg.TableFile != "" {
		if err := config.LoadTableConfig(cfg.TableFile); err != nil {
			return err
		}
	}
	tableCfg := config.GetTableConfig()

	be, err := openBackend(ctx, cfg, tableID)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer func() {
		if err := be.close(); err != nil {
			log.WithError(err).Warn("scorectl: failed to close store")
		}
	}()

	sess, found, err := app.LoadSession(ctx, be.store, tableCfg.Rules())
	if err != nil {
		// the stored table stays untouched until it can be read again
		return fmt.Errorf("load table %s: %w", tableID, err)
	}
	if !found {
		sess = domain.NewSession(tableCfg.Names(), tableCfg.Rules())
	}

	persister := app.NewPersister(be.store, log.WithField("table", tableID))
	defer persister.Close()

	c := &cli{
		svc:     app.NewService(log.WithField("table", tableID), persister),
		sess:    sess,
		yes:     yes,
		tableID: tableID,
		backend: be,
	}
	return c.dispatch(ctx, args[0], args[1:])
}

type cli struct {
	svc     *app.Service
	sess    *domain.Session
	yes     bool
	tableID string
	backend *backend
}

func (c *cli) confirm(notice *domain.ResetNotice) bool {
	pterm.Warning.Println(noticeText(c.sess.State, notice))
	if c.yes {
		return true
	}
	ok, err := pterm.DefaultInteractiveConfirm.WithDefaultText("Clear these claims and record the win?").Show()
	return err == nil && ok
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	s := c.sess.State
	var (
		events []app.Event
		err    error
	)
	switch cmd {
	case "show":
		renderSession(c.sess)
		return nil

	case "history":
		limit := 0
		if len(args) > 0 {
			if limit, err = parseInt("count", args[0]); err != nil {
				return err
			}
		}
		renderTable(historyRows(s, c.sess.History.Entries(), limit))
		return nil

	case "zimo", "win", "multi", "collect", "pay", "zhahu", "forfeit":
		ev, err := parseEvent(s, cmd, args)
		if err != nil {
			return err
		}
		events, err = c.svc.Declare(ctx, c.sess, ev, c.confirm)
		if errors.Is(err, app.ErrNotConfirmed) {
			pterm.Info.Println("Nothing recorded.")
			return nil
		}
		if err != nil {
			return err
		}

	case "preview":
		if len(args) == 0 {
			return errUsage
		}
		ev, err := parseEvent(s, args[0], args[1:])
		if err != nil {
			return err
		}
		res, err := c.svc.Preview(c.sess, ev)
		if err != nil {
			return err
		}
		renderPreview(s, res)
		return nil

	case "undo":
		events, err = c.svc.Undo(ctx, c.sess)

	case "reset":
		if !c.yes {
			ok, perr := pterm.DefaultInteractiveConfirm.WithDefaultText("Reset all scores and history? This cannot be undone").Show()
			if perr != nil || !ok {
				return nil
			}
		}
		events, err = c.svc.Reset(ctx, c.sess)

	case "dealer":
		if len(args) != 1 {
			return errUsage
		}
		id, perr := parsePlayer(s, args[0])
		if perr != nil {
			return perr
		}
		events, err = c.svc.SelectDealer(ctx, c.sess, id)

	case "bump":
		events, err = c.svc.BumpStreak(ctx, c.sess)

	case "pop":
		if len(args) != 1 {
			return errUsage
		}
		on, perr := parseToggle(args[0])
		if perr != nil {
			return perr
		}
		events, err = c.svc.SetPopOnNewWinner(ctx, c.sess, on)

	case "seat":
		order := make([]int, 0, len(args))
		for _, arg := range args {
			id, perr := parsePlayer(s, arg)
			if perr != nil {
				return perr
			}
			order = append(order, id)
		}
		events, err = c.svc.Reseat(ctx, c.sess, order)

	case "rename":
		if len(args) < 2 {
			return errUsage
		}
		id, perr := parsePlayer(s, args[0])
		if perr != nil {
			return perr
		}
		events, err = c.svc.Rename(ctx, c.sess, id, strings.Join(args[1:], " "))

	case "stats":
		renderTable(standingsRows(report.Standings(s, c.sess.History.Entries())))
		return nil

	case "payout":
		if len(args) < 1 {
			return errUsage
		}
		divisor, perr := parseFloat(args[0])
		if perr != nil {
			return perr
		}
		adj, perr := parseAdjustments(s, args[1:])
		if perr != nil {
			return perr
		}
		payouts, perr := report.Payouts(s, c.sess.History.Totals(), divisor, adj)
		if perr != nil {
			return perr
		}
		renderTable(payoutRows(payouts))
		return nil

	case "export":
		return c.export(args)

	case "tables":
		if c.backend.tables == nil {
			return fmt.Errorf("listing tables needs the sqlite store")
		}
		ids, err := c.backend.tables(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			pterm.Println(id)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	if err != nil {
		return err
	}
	renderEvents(c.sess.State, events)
	return nil
}

func (c *cli) export(args []string) error {
	out := os.Stdout
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := report.WriteCSV(out, c.sess.State, c.sess.History.Entries(), app.MaxHistoryExport); err != nil {
		return err
	}
	if out != os.Stdout {
		pterm.Success.Printfln("Wrote %s", args[0])
	}
	return nil
}
