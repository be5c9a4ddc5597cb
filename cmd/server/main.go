package main

import (
	"os"

	"github.com/night131rd/referensiku.ai-sub000/app"
	"github.com/night131rd/referensiku.ai-sub000/app/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	initLogging(cfg.Logs)

	app.MustInitDB()
	router, err := app.NewRouter()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize router")
	}
	if err := router.Run("0.0.0.0:8080"); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func initLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Style == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
