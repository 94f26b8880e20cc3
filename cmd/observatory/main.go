// Command observatory runs the live evolution telemetry dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"iter"
	"os"
	"os/signal"
	"syscall"
	"time"

	ui "github.com/gizak/termui/v3"

	"github.com/coachpo/observatory/config"
	"github.com/coachpo/observatory/internal/feed"
	"github.com/coachpo/observatory/internal/observability"
	"github.com/coachpo/observatory/internal/orchestrator"
	"github.com/coachpo/observatory/internal/render"
	"github.com/coachpo/observatory/internal/schema"
	"github.com/coachpo/observatory/internal/telemetry"
)

const (
	defaultConfigPath        = "config/observatory.yaml"
	telemetryShutdownTimeout = 5 * time.Second
)

type update struct {
	snap   *schema.Snapshot
	series iter.Seq[schema.HistoryPoint]
	state  feed.State
}

func main() {
	cfgPath := flag.String("config", defaultConfigPath, "path to the observatory yaml configuration")
	debug := flag.Bool("debug", false, "log debug output to stderr (redirect stderr when using the TUI)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	observability.SetLogger(observability.NewStdLogger("observatory ", *debug))

	cfg, loaded, err := config.LoadOrDefault(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if !loaded {
		observability.Log().Info("configuration file not found, using defaults",
			observability.F("path", *cfgPath))
	}

	_, telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init telemetry: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer shutdownCancel()
		_ = telemetryShutdown(shutdownCtx)
	}()

	metrics, err := observability.NewFeedMetrics()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init metrics: %v\n", err)
		os.Exit(1)
	}

	if err := ui.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "init terminal ui: %v\n", err)
		os.Exit(1)
	}
	defer ui.Close()

	if err := run(ctx, cfg, metrics); err != nil {
		ui.Close()
		fmt.Fprintf(os.Stderr, "observatory: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, metrics *observability.FeedMetrics) error {
	width, height := ui.TerminalDimensions()
	dash := render.NewDashboard(width, height)

	// Orchestrator callbacks arrive on feed and timer goroutines; termui is
	// not thread-safe, so updates funnel into the event loop below.
	updates := make(chan update, 8)
	notes := make(chan orchestrator.Notification, 4)

	o := orchestrator.New(ctx, orchestrator.Options{
		Config:  cfg,
		Metrics: metrics,
		OnUpdate: func(snap *schema.Snapshot, series iter.Seq[schema.HistoryPoint], state feed.State) {
			select {
			case updates <- update{snap: snap, series: series, state: state}:
			default:
			}
		},
		OnNotify: func(n orchestrator.Notification) {
			select {
			case notes <- n:
			default:
			}
		},
	})
	o.Start()
	defer o.Close()

	lastNote := ""
	statusLine := func(state feed.State) string {
		line := "feed " + state.String() + "  [t]rigger [r]eset [q]uit"
		if lastNote != "" {
			line += "\n" + lastNote
		}
		return line
	}

	uiEvents := ui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "t":
				o.Trigger()
			case "r":
				o.Reset()
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				dash.Resize(payload.Width, payload.Height)
				dash.Update(o.Current(), o.Series(), statusLine(o.FeedState()))
			}
		case u := <-updates:
			dash.Update(u.snap, u.series, statusLine(u.state))
		case n := <-notes:
			if n.Err != nil {
				lastNote = n.Text + ": " + n.Err.Error()
			} else {
				lastNote = n.Text
			}
			dash.Update(o.Current(), o.Series(), statusLine(o.FeedState()))
		}
	}
}
