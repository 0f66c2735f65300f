package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DurmazDev/microblog/internal/config"
)

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id             BIGSERIAL PRIMARY KEY,
		type           SMALLINT    NOT NULL,
		source_address TEXT        NOT NULL DEFAULT '',
		client_agent   TEXT        NOT NULL DEFAULT '',
		description    TEXT        NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL
	)
`

const insertSQL = `
	INSERT INTO audit_logs (type, source_address, client_agent, description, created_at)
	VALUES ($1, $2, $3, $4, $5)
`

// execer pgxpool.Pool 满足该接口
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Postgres 追加写入 audit_logs 表
type Postgres struct {
	db  execer
	now func() time.Time
}

// NewPostgres 创建 PostgreSQL Sink
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return newPostgres(db)
}

func newPostgres(db execer) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Migrate 建表
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("audit: create table: %w", err)
	}
	return nil
}

// Append 插入一条审计记录，CreatedAt 为空时取当前时间
func (p *Postgres) Append(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = p.now()
	}

	_, err := p.db.Exec(ctx, insertSQL,
		int(entry.Kind),
		entry.SourceAddress,
		entry.ClientAgent,
		entry.Description,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Connect 连接 PostgreSQL
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	return pgxpool.NewWithConfig(ctx, poolConfig)
}
