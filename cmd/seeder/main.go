// Command seeder loads connectors and payout methods into PostgreSQL.
//
//	seeder -file seed.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/baharkarakas/qrcharge-backend/internal/config"
	"github.com/baharkarakas/qrcharge-backend/internal/db"
	"github.com/baharkarakas/qrcharge-backend/internal/logger"
)

type seedFile struct {
	Connectors []struct {
		Token        string `yaml:"token"`
		StationID    string `yaml:"station_id"`
		MerchantID   string `yaml:"merchant_id"`
		PricePerUnit string `yaml:"price_per_unit"`
		Capacity     int    `yaml:"capacity"`
	} `yaml:"connectors"`
	PayoutMethods []struct {
		OwnerID string            `yaml:"owner_id"`
		Kind    string            `yaml:"kind"`
		Label   string            `yaml:"label"`
		Details map[string]string `yaml:"details"`
	} `yaml:"payout_methods"`
}

func main() {
	path := flag.String("file", "seed.yaml", "seed file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)
	if err := seed(context.Background(), cfg, *path, log); err != nil {
		log.Error("seed failed", "err", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, cfg config.Config, path string, log *slog.Logger) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var sf seedFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.RunMigrations(ctx, pool); err != nil {
		return err
	}

	now := time.Now()
	connRows := make([][]any, 0, len(sf.Connectors))
	for _, c := range sf.Connectors {
		price, err := decimal.NewFromString(c.PricePerUnit)
		if err != nil {
			return fmt.Errorf("connector %s price: %w", c.Token, err)
		}
		capacity := c.Capacity
		if capacity <= 0 {
			capacity = 1
		}
		connRows = append(connRows, []any{uuid.NewString(), c.Token, c.StationID, c.MerchantID, price, capacity, capacity, true, now})
	}
	pmRows := make([][]any, 0, len(sf.PayoutMethods))
	for _, m := range sf.PayoutMethods {
		details, err := json.Marshal(m.Details)
		if err != nil {
			return err
		}
		pmRows = append(pmRows, []any{uuid.NewString(), m.OwnerID, m.Kind, m.Label, string(details), now})
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"connectors"},
			[]string{"id", "token", "station_id", "merchant_id", "price_per_unit", "capacity", "available_capacity", "active", "updated_at"},
			pgx.CopyFromRows(connRows))
		if err != nil {
			return fmt.Errorf("copy connectors: %w", err)
		}
		log.Info("connectors seeded", "rows", n)

		n, err = tx.CopyFrom(ctx, pgx.Identifier{"payout_methods"},
			[]string{"id", "owner_id", "kind", "label", "details", "created_at"},
			pgx.CopyFromRows(pmRows))
		if err != nil {
			return fmt.Errorf("copy payout methods: %w", err)
		}
		log.Info("payout methods seeded", "rows", n)
		return nil
	})
}
