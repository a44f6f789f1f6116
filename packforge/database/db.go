package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"time"

	"log/slog"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/uptrace/bun"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	defaultConnTimeout   = 5 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = time.Second
)

type DBConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	PoolSize     int    `toml:"pool_size"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	MaxLifetime  int    `toml:"max_lifetime"`
}

type DB struct {
	pool  *pgxpool.Pool
	bunDB *bun.DB
}

func New(ctx context.Context, cfg DBConfig) (*DB, error) {
	// Probe reachability first so a bad host fails fast with a clear error
	// instead of surfacing as a pool timeout later.
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	var conn net.Conn
	var err error
	for i := 0; i < defaultMaxRetries; i++ {
		conn, err = net.DialTimeout("tcp", addr, defaultConnTimeout)
		if err == nil {
			break
		}
		time.Sleep(defaultRetryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("database server unreachable after %d attempts: %w", defaultMaxRetries, err)
	}
	conn.Close()

	poolConfig, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.PoolSize)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxLifetime) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{pool: pool, bunDB: newBunDB(pool)}, nil
}

func buildConnString(cfg DBConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=5",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
	)
}

func (db *DB) GetPool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) BunDB() *bun.DB {
	return db.bunDB
}

func newBunDB(pool *pgxpool.Pool) *bun.DB {
	sslMode := os.Getenv("PG_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pool.Config().ConnConfig.User,
		pool.Config().ConnConfig.Password,
		pool.Config().ConnConfig.Host,
		pool.Config().ConnConfig.Port,
		pool.Config().ConnConfig.Database,
		sslMode,
	)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// InitializeSchema creates all required tables and indexes.
func (db *DB) InitializeSchema(ctx context.Context) error {
	tables := []interface{}{
		(*models.Rarity)(nil),
		(*models.CardDesign)(nil),
		(*models.CardInstance)(nil),
		(*models.PackType)(nil),
		(*models.Pack)(nil),
		(*models.User)(nil),
		(*models.Trade)(nil),
		(*models.FulfillmentEvent)(nil),
		(*models.DeadLetter)(nil),
	}

	for _, model := range tables {
		_, err := db.bunDB.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		// The unique card-number index is the collision backstop for
		// concurrent allocation: the losing writer gets a unique violation
		// and moves on to the next free number.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_card_instances_number ON card_instances(design_id, rarity_id, card_number);",
		"CREATE INDEX IF NOT EXISTS idx_card_instances_design_rarity ON card_instances(design_id, rarity_id);",
		"CREATE INDEX IF NOT EXISTS idx_card_instances_owner ON card_instances(owner_user_id);",
		"CREATE INDEX IF NOT EXISTS idx_card_instances_pack ON card_instances(pack_id);",
		"CREATE INDEX IF NOT EXISTS idx_card_instances_unopened ON card_instances(design_id) WHERE opened_at IS NULL;",
		"CREATE INDEX IF NOT EXISTS idx_card_designs_season ON card_designs(season_id);",
		"CREATE INDEX IF NOT EXISTS idx_packs_user_id ON packs(user_id);",
		"CREATE INDEX IF NOT EXISTS idx_packs_event_id ON packs(event_id);",
		"CREATE INDEX IF NOT EXISTS idx_trades_sender ON trades(sender_user_id);",
		"CREATE INDEX IF NOT EXISTS idx_trades_receiver ON trades(receiver_user_id);",
		"CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);",
		"CREATE INDEX IF NOT EXISTS idx_dead_letters_queue ON dead_letters(queue, received_at);",
	}

	for _, idx := range indexes {
		if _, err := db.bunDB.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	slog.Info("Database schema initialized",
		slog.String("type", "db"),
		slog.Int("tables", len(tables)),
		slog.Int("indexes", len(indexes)))

	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	if err := db.pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (db *DB) Close() {
	if db.bunDB != nil {
		db.bunDB.Close()
	}
	if db.pool != nil {
		db.pool.Close()
	}
}
