package app

import (
	"database/sql"
	"fmt"

	"github.com/night131rd/referensiku.ai-sub000/app/config"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

var db *sql.DB

// MustInitDB initializes the global db and the SQL-backed store, and logs
// fatally on error.
func MustInitDB() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		cfg.DB.Username,
		cfg.DB.Password,
		cfg.DB.URL,
		cfg.DB.Port,
		cfg.DB.Database,
	)

	d, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}

	if err := d.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}

	log.Info().Msg("connected to Postgres")
	db = d
	store = &sqlStore{db: d}
}
