package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool and pgx.Tx used by the store.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = errors.New("customer: email already registered")

const customerColumns = `id::text, number, COALESCE(name, ''), COALESCE(email, ''), customer_type,
       COALESCE(business_name, ''), COALESCE(street, ''), COALESCE(city, ''), COALESCE(postcode, ''), COALESCE(phone, ''),
       is_active, is_admin, COALESCE(password_hash, ''), created_at`

// Store persists customers in Postgres.
type Store struct {
	db DB
}

// NewStore constructs a Store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Get loads a customer by id.
func (s *Store) Get(ctx context.Context, id string) (Customer, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return Customer{}, ErrNotFound
	}
	q := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	return scanCustomer(s.db.QueryRow(ctx, q, parsed))
}

// GetByEmail loads the first customer with the given email, case-insensitively.
func (s *Store) GetByEmail(ctx context.Context, email string) (Customer, error) {
	q := `SELECT ` + customerColumns + ` FROM customers WHERE lower(email) = lower($1) ORDER BY created_at LIMIT 1`
	return scanCustomer(s.db.QueryRow(ctx, q, strings.TrimSpace(email)))
}

// Create inserts a new customer and returns the stored row.
func (s *Store) Create(ctx context.Context, c Customer) (Customer, error) {
	q := `
INSERT INTO customers (number, name, email, customer_type, password_hash, is_active, is_admin)
VALUES ($1, NULLIF($2, ''), lower($3), $4, NULLIF($5, ''), $6, $7)
RETURNING ` + customerColumns
	created, err := scanCustomer(s.db.QueryRow(ctx, q, c.Number, c.Name, c.Email, string(c.Class()), c.PasswordHash, c.IsActive, c.IsAdmin))
	return created, uniqueViolation(err)
}

// Upsert inserts or refreshes a customer keyed by number. It is used by the seeder.
func (s *Store) Upsert(ctx context.Context, c Customer) (Customer, error) {
	q := `
INSERT INTO customers (number, name, email, customer_type, password_hash, is_active, is_admin)
VALUES ($1, NULLIF($2, ''), lower($3), $4, NULLIF($5, ''), $6, $7)
ON CONFLICT (number) DO UPDATE SET
    name = EXCLUDED.name,
    email = EXCLUDED.email,
    customer_type = EXCLUDED.customer_type,
    password_hash = EXCLUDED.password_hash,
    is_active = EXCLUDED.is_active,
    is_admin = EXCLUDED.is_admin
RETURNING ` + customerColumns
	return scanCustomer(s.db.QueryRow(ctx, q, c.Number, c.Name, c.Email, string(c.Class()), c.PasswordHash, c.IsActive, c.IsAdmin))
}

// UpdateProfile applies non-empty profile fields and returns the updated row.
func (s *Store) UpdateProfile(ctx context.Context, id string, p Profile) (Customer, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return Customer{}, ErrNotFound
	}
	q := `
UPDATE customers SET
    name = COALESCE(NULLIF($2, ''), name),
    email = COALESCE(NULLIF(lower($3), ''), email)
WHERE id = $1
RETURNING ` + customerColumns
	updated, err := scanCustomer(s.db.QueryRow(ctx, q, parsed, strings.TrimSpace(p.Name), strings.TrimSpace(p.Email)))
	return updated, uniqueViolation(err)
}

func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

// UpdateContact stores the address captured at checkout. A blank business name keeps
// the existing one.
func UpdateContact(ctx context.Context, db DB, id string, c Contact) error {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return ErrNotFound
	}
	const q = `
UPDATE customers SET
    business_name = COALESCE(NULLIF($2, ''), business_name),
    street = $3,
    city = $4,
    postcode = $5,
    phone = $6
WHERE id = $1
`
	tag, err := db.Exec(ctx, q, parsed, strings.TrimSpace(c.BusinessName), c.Street, c.City, c.Postcode, c.Phone)
	if err != nil {
		return fmt.Errorf("update customer contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Number, &c.Name, &c.Email, &c.Type,
		&c.BusinessName, &c.Street, &c.City, &c.Postcode, &c.Phone,
		&c.IsActive, &c.IsAdmin, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, err
	}
	return c, nil
}
