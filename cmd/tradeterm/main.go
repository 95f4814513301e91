// Command tradeterm is a minimal demo bootstrap wiring config, the
// simulator gateway and signal-based shutdown together.
//
// Grounding: bootstrap ordering (env load, logging setup, signal
// handling, graceful Disconnect on shutdown) follows the teacher's
// cmd/main.go, trimmed to the core's own layers (no storage/strategy/
// risk/telegram bootstrap, since those belong to the dropped bot shell).
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketforge/tradecore/config"
	"github.com/marketforge/tradecore/gateway"
	"github.com/marketforge/tradecore/gateway/simulator"
	"github.com/marketforge/tradecore/model"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().
		Dur("speed", cfg.Speed).
		Str("source", cfg.Source).
		Str("balance", cfg.InitialBalance.String()).
		Msg("tradecore starting")

	sim := simulator.New(cfg.AccountDescriptor, cfg.InitialBalance, cfg.Source, cfg.Speed)

	entries, err := os.ReadDir(cfg.Source)
	if err != nil {
		log.Fatal().Err(err).Str("source", cfg.Source).Msg("cannot read tick source directory")
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		inst := model.NewInstrument(name, model.Equity, 0)
		if resp := sim.Subscribe(inst); !resp.Succeeded() {
			log.Warn().Str("instrument", name).Interface("errors", resp.Errors).Msg("subscribe failed")
		}
	}

	if resp := sim.Connect(); !resp.Succeeded() {
		log.Fatal().Interface("errors", resp.Errors).Msg("connect failed")
	}
	defer sim.Disconnect()

	logOrderEvents(sim)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
}

func logOrderEvents(g gateway.Gateway) {
	sub := g.Orders().Subscribe(64)
	go func() {
		for msg := range sub.C() {
			log.Info().
				Str("action", string(msg.Action)).
				Str("order", msg.Next.Id).
				Str("status", string(msg.Next.Status)).
				Msg("order event")
		}
	}()
}
