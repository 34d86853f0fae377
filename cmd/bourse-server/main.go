package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"bourse/internal/config"
	"bourse/internal/net"
	"bourse/internal/stepenv"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("bourse-server: failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	env := stepenv.NewNumpy(cfg.Seed, cfg.StartTime, cfg.TickSize, cfg.StepSize)
	log.Info().
		Str("runID", env.RunID()).
		Uint64("seed", cfg.Seed).
		Uint32("tickSize", cfg.TickSize).
		Int64("stepSize", cfg.StepSize).
		Msg("bourse-server: simulation initialized")

	srv := net.New(cfg.Address, cfg.Port, env)

	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Error().Err(err).Msg("bourse-server: server exited with error")
		}
	}()

	<-ctx.Done()
}
