// Package postgres persists discovered product URLs in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

const defaultTable = "product_urls"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// DomainStore implements crawler.ResultStore on one row per domain.
type DomainStore struct {
	pool  pool
	table string
}

// NewDomainStore connects a pgx pool using cfg.
func NewDomainStore(ctx context.Context, cfg Config) (*DomainStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewDomainStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewDomainStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewDomainStoreWithPool(p pool, table string) (*DomainStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &DomainStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *DomainStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the table when it does not exist.
func (s *DomainStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	domain TEXT NOT NULL UNIQUE,
	urls TEXT[] NOT NULL,
	crawling_date TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertDomain inserts the record or replaces the urls and crawl date of the existing row.
func (s *DomainStore) UpsertDomain(ctx context.Context, record crawler.DomainRecord) error {
	if record.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	urls := record.URLs
	if urls == nil {
		urls = []string{}
	}
	crawlDate := record.CrawlDate
	if crawlDate.IsZero() {
		crawlDate = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (domain, urls, crawling_date)
VALUES ($1, $2, $3)
ON CONFLICT (domain) DO UPDATE
SET urls = EXCLUDED.urls, crawling_date = EXCLUDED.crawling_date`, s.table)

	if _, err := s.pool.Exec(ctx, query, record.Domain, urls, crawlDate); err != nil {
		return fmt.Errorf("upsert domain %s: %w", record.Domain, err)
	}
	return nil
}

// GetDomain loads the record for domain.
func (s *DomainStore) GetDomain(ctx context.Context, domain string) (crawler.DomainRecord, error) {
	query := fmt.Sprintf(`SELECT domain, urls, crawling_date FROM %s WHERE domain = $1`, s.table)

	var record crawler.DomainRecord
	err := s.pool.QueryRow(ctx, query, domain).Scan(&record.Domain, &record.URLs, &record.CrawlDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.DomainRecord{}, fmt.Errorf("%w: %s", crawler.ErrDomainNotFound, domain)
	}
	if err != nil {
		return crawler.DomainRecord{}, fmt.Errorf("select domain %s: %w", domain, err)
	}
	return record, nil
}
