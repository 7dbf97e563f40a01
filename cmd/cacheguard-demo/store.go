package main

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// Product is the record a cold Fetch loads from Postgres.
type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ErrProductNotFound is returned by ProductStore.Get for an unknown id.
// It is not a loader error: cacheguard negatively caches it instead.
var ErrProductNotFound = errors.New("cacheguard-demo: product not found")

// ProductStore is the system of record the cache sits in front of.
type ProductStore struct {
	db *sql.DB
}

// DBConfig holds the connection-pool tuning for the backing Postgres store.
type DBConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultDBConfig returns sensible defaults for the demo's connection pool.
func DefaultDBConfig(url string) DBConfig {
	return DBConfig{
		URL:             url,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
}

// NewProductStore opens a connection pool against cfg.URL, verifies
// connectivity and idempotently applies the embedded schema.
func NewProductStore(ctx context.Context, cfg DBConfig) (*ProductStore, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("cacheguard-demo: open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cacheguard-demo: ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cacheguard-demo: init schema: %w", err)
	}

	return &ProductStore{db: db}, nil
}

// Ping checks database reachability; satisfies the server's health-check Pinger.
func (s *ProductStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ProductStore) Close() error {
	return s.db.Close()
}

// Get loads a product by id, or ErrProductNotFound if it doesn't exist.
// This is the expensive call cacheguard.Fetch's loader wraps.
func (s *ProductStore) Get(ctx context.Context, id string) (Product, error) {
	var p Product
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, price_cents, updated_at FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.PriceCents, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("cacheguard-demo: query product %s: %w", id, err)
	}
	return p, nil
}

// Upsert writes or replaces a product, bumping its updated_at.
func (s *ProductStore) Upsert(ctx context.Context, p Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price_cents, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price_cents = EXCLUDED.price_cents, updated_at = now()
	`, p.ID, p.Name, p.PriceCents)
	if err != nil {
		return fmt.Errorf("cacheguard-demo: upsert product %s: %w", p.ID, err)
	}
	return nil
}

// Delete removes a product. Callers are responsible for also calling
// cacheguard.Client.TagAsDeleted so cached readers stop seeing stale data.
func (s *ProductStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("cacheguard-demo: delete product %s: %w", id, err)
	}
	return nil
}
