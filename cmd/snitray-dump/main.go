// Command snitray-dump prints every tray item event it observes to stdout,
// useful for inspecting what a desktop session's tray applications are
// actually advertising.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trayhost/snitray"
	"github.com/trayhost/snitray/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "snitray-dump",
		Short: "Stream StatusNotifierItem events from the session bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "optional path to a TOML config file")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	client, err := snitray.New(ctx, snitray.Options{
		ActivationTimeout:         cfg.ActivationTimeout(time.Second),
		ClearAllOnWatcherTakeover: cfg.ClearAllOnWatcherTakeover,
		Logger:                    logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info("registered as tray host", "name", client.HostName())

	enc := json.NewEncoder(os.Stdout)
	for {
		events, err := client.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, ev := range events {
			_ = enc.Encode(dumpEvent(ev))
		}
	}
}

func dumpEvent(ev snitray.Event) map[string]interface{} {
	out := map[string]interface{}{
		"destination": ev.Destination.String(),
	}
	switch ev.Kind {
	case snitray.EventAdd:
		out["kind"] = "add"
		out["snapshot"] = ev.Snapshot
	case snitray.EventUpdate:
		out["kind"] = "update"
		out["tag"] = ev.Update.Tag
	case snitray.EventRemove:
		out["kind"] = "remove"
	}
	return out
}
