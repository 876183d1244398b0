package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luciancaetano/wspipe"
	"github.com/luciancaetano/wspipe/internal/config"
	"github.com/luciancaetano/wspipe/internal/logger"
	"github.com/luciancaetano/wspipe/ws"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Accept clients and print the messages they send",
	Long: `Accept WebSocket clients and print every message they send.

Messages are JSON documents with a single key:
  {"Join": "alice"}
  {"Position": {"x": 3, "y": 4}}

Each message is acknowledged with {"seq": N, "kind": "join"|"position"}.`,
	RunE: runListen,
}

func init() {
	flags := listenCmd.Flags()
	flags.String("addr", "127.0.0.1:3000", "address to listen on")
	flags.Int("capacity", 4, "per-client queue capacity")
	flags.Int("registration-capacity", 4, "pending registrations before new clients are rejected")
	flags.Duration("interval", 100*time.Millisecond, "poll interval")
	flags.Bool("log-json", false, "log as JSON")
	flags.String("log-level", "info", "log level")
}

func runListen(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(configFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"server.addr":                  "addr",
		"server.capacity":              "capacity",
		"server.registration_capacity": "registration-capacity",
		"server.poll_interval":         "interval",
		"log.json":                     "log-json",
		"log.level":                    "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return errors.Wrapf(err, "bind flag --%s", flag)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.JSON, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	bus, listener, err := ws.New[Input, Ack](cfg.Websocket(log))
	if err != nil {
		return err
	}
	if err := listener.Listen(""); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runLoop(ctx, bus, listener, cfg.Server.PollInterval, cmd, log)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := listener.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return listener.Err()
}

// runLoop polls the bus once per tick until ctx is cancelled or the listener stops.
func runLoop(ctx context.Context, bus wspipe.Bus[Input, Ack], listener wspipe.Listener, interval time.Duration, cmd *cobra.Command, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-listener.Done():
			log.Error("listener stopped", zap.Error(listener.Err()))
			return
		case <-ticker.C:
		}

		for id, msg := range bus.Poll() {
			seq++
			fmt.Fprintf(cmd.OutOrStdout(), "From %d: %s\n", id, msg)
			if err := bus.Send(id, Ack{Seq: seq, Kind: msg.Kind()}); err != nil {
				log.Debug("ack not sent", zap.Uint64("client_id", uint64(id)), zap.Error(err))
			}
		}
	}
}
