package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const productColumns = `id, name, generic_name, form, pack_size, description, price_cents, stock, status`

// PostgresStore reads the catalog tables owned by the inventory system.
type PostgresStore struct {
	db          rowQuerier
	searchLimit int
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresStore{db: pool, searchLimit: 50}
}

func newPostgresStoreWithQuerier(db rowQuerier) *PostgresStore {
	if db == nil {
		panic("catalog: querier required")
	}
	return &PostgresStore{db: db, searchLimit: 50}
}

// Search implements Reader with a case-insensitive substring match.
func (s *PostgresStore) Search(ctx context.Context, query string) ([]Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	sql := `
		SELECT ` + productColumns + `
		FROM products
		WHERE name ILIKE '%' || $1 || '%' OR generic_name ILIKE '%' || $1 || '%'
		ORDER BY name, id
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, sql, escapeLike(query), s.searchLimit)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w: %w", ErrUnavailable, err)
	}
	return collectProducts(rows)
}

// GetByID implements Reader.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Product, error) {
	sql := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(s.db.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("catalog: get product: %w: %w", ErrUnavailable, err)
	}
	return p, nil
}

// List implements Reader.
func (s *PostgresStore) List(ctx context.Context) ([]Product, error) {
	sql := `SELECT ` + productColumns + ` FROM products ORDER BY name, id`
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w: %w", ErrUnavailable, err)
	}
	return collectProducts(rows)
}

// Upsert writes products into the catalog table, replacing rows with the
// same id. It is used to load a seed file into a fresh database.
func (s *PostgresStore) Upsert(ctx context.Context, products ...Product) (int, error) {
	sql := `
		INSERT INTO products (` + productColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			generic_name = EXCLUDED.generic_name,
			form = EXCLUDED.form,
			pack_size = EXCLUDED.pack_size,
			description = EXCLUDED.description,
			price_cents = EXCLUDED.price_cents,
			stock = EXCLUDED.stock,
			status = EXCLUDED.status,
			updated_at = now()
	`
	written := 0
	for _, p := range products {
		if _, err := s.db.Exec(ctx, sql,
			p.ID, p.Name, p.GenericName, p.Form, p.PackSize, p.Description,
			int64(p.Price), p.Stock, string(p.Status),
		); err != nil {
			return written, fmt.Errorf("catalog: upsert %s: %w", p.ID, err)
		}
		written++
	}
	return written, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w: %w", ErrUnavailable, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: read rows: %w: %w", ErrUnavailable, err)
	}
	return out, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p          Product
		priceCents int64
		status     string
	)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.GenericName,
		&p.Form,
		&p.PackSize,
		&p.Description,
		&priceCents,
		&p.Stock,
		&status,
	); err != nil {
		return Product{}, err
	}
	parsed, err := ParseStatus(status)
	if err != nil {
		return Product{}, err
	}
	p.Price = Money(priceCents)
	p.Status = parsed
	return p, nil
}

// escapeLike stops user text from acting as ILIKE wildcards.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
