// Package config resolves the simulation and server parameters the
// cmd/ binaries need: tick size, seed, step size, start time, and the
// TCP listen address. Flags take precedence; unset flags fall back to
// environment variables, which may themselves come from a .env file.
package config

import (
	"flag"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds every parameter needed to stand up a bourse-server
// instance or drive a standalone StepEnv.
type Config struct {
	Address   string
	Port      int
	Seed      uint64
	TickSize  uint32
	StepSize  int64
	StartTime int64
}

const (
	defaultAddress  = "0.0.0.0"
	defaultPort     = 9001
	defaultSeed     = 101
	defaultTickSize = 1
	defaultStepSize = 100_000 // ns
)

// Load parses CLI flags, falling back to environment variables (loaded
// best-effort from a .env file in the working directory, exactly as
// godotenv.Load is meant to be used) for anything not set on the
// command line.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("config: failed to load .env file")
	}

	fs := flag.NewFlagSet("bourse", flag.ContinueOnError)
	address := fs.String("address", envOr("BOURSE_ADDRESS", defaultAddress), "TCP listen address")
	port := fs.Int("port", envOrInt("BOURSE_PORT", defaultPort), "TCP listen port")
	seed := fs.Uint64("seed", envOrUint64("BOURSE_SEED", defaultSeed), "deterministic RNG seed")
	tickSize := fs.Uint("tick-size", uint(envOrUint64("BOURSE_TICK_SIZE", defaultTickSize)), "minimum price increment")
	stepSize := fs.Int64("step-size", envOrInt64("BOURSE_STEP_SIZE", defaultStepSize), "simulated nanoseconds advanced per step")
	startTime := fs.Int64("start-time", envOrInt64("BOURSE_START_TIME", 0), "initial simulated clock value, in nanoseconds")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return Config{
		Address:   *address,
		Port:      *port,
		Seed:      *seed,
		TickSize:  uint32(*tickSize),
		StepSize:  *stepSize,
		StartTime: *startTime,
	}, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envOrUint64(key string, fallback uint64) uint64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
