package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-grocer/internal/app"
	"github.com/noah-isme/backend-grocer/internal/catalog"
	"github.com/noah-isme/backend-grocer/internal/customer"
	"github.com/noah-isme/backend-grocer/internal/migrate"
	"github.com/noah-isme/backend-grocer/internal/obs"
)

type seedCustomer struct {
	Number   string
	Name     string
	Email    string
	Password string
	Type     string
	Admin    bool
}

type seedProduct struct {
	SKU         string
	Name        string
	Description string
	Retail      string
	Wholesale   string
	WeightKg    string
	Category    string
}

var customers = []seedCustomer{
	{Number: "1001", Name: "Al Razak Wholesale", Email: "wholesale@example.com", Password: "alrazak1", Type: "WHOLESALE"},
	{Number: "2002", Name: "Retail Shopper", Email: "retail@example.com", Password: "alrazak2", Type: "RETAIL"},
	{Number: "9999", Name: "Store Admin", Email: "admin@example.com", Password: "admin123", Type: "RETAIL", Admin: true},
}

var products = []seedProduct{
	{SKU: "BR-5KG", Name: "Basmati Rice 5kg", Description: "Aged long grain basmati.", Retail: "14.99", Wholesale: "11.20", WeightKg: "5", Category: "rice"},
	{SKU: "BR-10KG", Name: "Basmati Rice 10kg", Description: "Aged long grain basmati, catering sack.", Retail: "27.99", Wholesale: "22.50", WeightKg: "10", Category: "rice"},
	{SKU: "RW-500", Name: "Rose Water 500ml", Description: "Distilled rose water.", Retail: "2.49", Wholesale: "1.85", WeightKg: "0.55", Category: "cooking"},
}

func main() {
	withMigrate := flag.Bool("migrate", false, "apply migrations before seeding")
	flag.Parse()

	_ = godotenv.Load()
	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "console"), "info").With().Str("component", "seeder").Logger()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := app.OpenDatabase(ctx, dbURL, "grocer-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if *withMigrate {
		if err := migrate.Apply(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	if err := seedCustomers(ctx, customer.NewStore(pool), logger); err != nil {
		logger.Fatal().Err(err).Msg("seed customers")
	}
	if err := seedProducts(ctx, pool, catalog.NewStore(pool), logger); err != nil {
		logger.Fatal().Err(err).Msg("seed products")
	}
	logger.Info().Msg("seeding completed")
}

func seedCustomers(ctx context.Context, store *customer.Store, logger zerolog.Logger) error {
	for _, c := range customers {
		hash, err := customer.HashPassword(c.Password)
		if err != nil {
			return err
		}
		saved, err := store.Upsert(ctx, customer.Customer{
			Number:       c.Number,
			Name:         c.Name,
			Email:        c.Email,
			Type:         c.Type,
			PasswordHash: hash,
			IsActive:     true,
			IsAdmin:      c.Admin,
		})
		if err != nil {
			return err
		}
		logger.Info().Str("number", saved.Number).Str("email", saved.Email).Str("type", saved.Type).Msg("customer seeded")
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, store *catalog.Store, logger zerolog.Logger) error {
	for _, p := range products {
		id, err := store.UpsertProduct(ctx, catalog.Product{
			SKU:            p.SKU,
			Name:           p.Name,
			Description:    p.Description,
			RetailPrice:    mustDecimal(p.Retail),
			WholesalePrice: mustDecimal(p.Wholesale),
			UnitWeightKg:   mustDecimal(p.WeightKg),
			VATRate:        mustDecimal("0.20"),
			Active:         true,
		})
		if err != nil {
			return err
		}
		if err := linkCategory(ctx, pool, id, p.Category); err != nil {
			return err
		}
		logger.Info().Str("sku", p.SKU).Str("id", id).Msg("product seeded")
	}
	return nil
}

func linkCategory(ctx context.Context, pool *pgxpool.Pool, productID, slug string) error {
	const q = `
WITH c AS (
    INSERT INTO categories (slug, name) VALUES ($2, initcap($2))
    ON CONFLICT (slug) DO UPDATE SET name = categories.name
    RETURNING id
)
INSERT INTO product_categories (product_id, category_id)
SELECT $1::uuid, id FROM c
ON CONFLICT DO NOTHING
`
	_, err := pool.Exec(ctx, q, productID, slug)
	return err
}

func mustDecimal(value string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(value))
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
