package publish

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresTarget publishes into a PostgreSQL database.
type PostgresTarget struct {
	BaseTarget
}

// NewPostgres creates a new PostgreSQL target instance.
// If logger is nil, a discard logger is used.
func NewPostgres(logger *slog.Logger) *PostgresTarget {
	return &PostgresTarget{BaseTarget: newBase(logger, dialect{
		name:          "postgres",
		placeholder:   dollarPlaceholder,
		timestampType: "TIMESTAMPTZ",
		boolType:      "BOOLEAN",
	})}
}

// Connect establishes a connection to PostgreSQL.
func (t *PostgresTarget) Connect(ctx context.Context, cfg Config) error {
	connCfg, err := pgx.ParseConfig(buildPostgresDSN(cfg))
	if err != nil {
		return fmt.Errorf("invalid postgres connection settings: %w", err)
	}

	t.Logger.Debug("connecting to postgres", slog.String("host", connCfg.Host), slog.String("database", connCfg.Database))

	db := stdlib.OpenDB(*connCfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	t.DB = db
	t.Cfg = cfg
	return nil
}

// buildPostgresDSN constructs a PostgreSQL connection string.
func buildPostgresDSN(cfg Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if cfg.Options != nil {
		if mode, ok := cfg.Options["sslmode"]; ok {
			sslmode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, cfg.Database, sslmode)

	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}

	return dsn
}

func init() {
	Register("postgres", func(logger *slog.Logger) Target { return NewPostgres(logger) })
}
