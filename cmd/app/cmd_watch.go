package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"SentinelX/internal/di"
	"SentinelX/internal/domain/models"
	"SentinelX/internal/usecase"
	"SentinelX/pkg/clock"
	applogger "SentinelX/pkg/logger"
	"SentinelX/pkg/metrics"
)

var watchJSON bool

var watchCmd = &cobra.Command{
	Use:   "watch <view>",
	Short: "Mount a view and print its stats on every commit",
	Long: `Mounts one view against the configured backend and prints the projected
stats after every committed result until interrupted.

Views: overview, live, explorer, playground`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print the full stats as JSON lines")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := cliLogger()
	m := metrics.Nop{}
	views := di.ProvideViewManager(cfg, di.ProvideBackend(cfg, m, log), m, log, clock.SystemClock{}, nil, nil, nil, nil)
	defer closeViews(views, log)

	v, _, err := views.Mount(args[0])
	if err != nil {
		return err
	}
	events, cancel := v.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Status == models.StatusLoading {
				continue
			}
			stats, err := views.Stats(ctx, v.Name())
			if err != nil {
				return err
			}
			if err := printStats(os.Stdout, ev, stats, watchJSON); err != nil {
				return err
			}
		}
	}
}

// closeViews unmounts every view, logging instead of failing the command.
func closeViews(views interface{ Close(context.Context) error }, log *applogger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := views.Close(ctx); err != nil {
		log.Warn("unmount views", applogger.Error(err))
	}
}

func printStats(w io.Writer, ev models.CommitEvent, st usecase.DisplayStats, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(st)
	}

	parts := []string{
		ev.Committed.Format(time.TimeOnly),
		fmt.Sprintf("%s#%d=%s", ev.Kind, ev.Tick, ev.Status),
	}
	if ev.Err != nil {
		parts = append(parts, fmt.Sprintf("error=%q", ev.Err.Message))
	}
	if st.Health != nil {
		parts = append(parts, "health="+st.Health.Status)
	}
	if f := st.Feeds; f != nil {
		parts = append(parts, fmt.Sprintf("feeds=%d", f.TotalProcessed), "rate="+f.PerSecond)
		if f.ObservedPerSecond != nil {
			parts = append(parts, "observed="+*f.ObservedPerSecond)
		}
	}
	if len(st.Blocks) > 0 {
		parts = append(parts, fmt.Sprintf("head=%d", st.Blocks[0].Number))
	}
	if len(st.Txs) > 0 {
		parts = append(parts, fmt.Sprintf("txs=%d", len(st.Txs)))
	}
	if p := st.Price; p != nil {
		parts = append(parts, "price="+p.PriceUSD)
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}
