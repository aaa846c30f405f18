// Package generate produces synthetic retail batches for exercising the
// pipeline. The output is deliberately dirty: null amounts and cities,
// duplicated transaction rows, users whose city changes between batches.
// Rows go straight into the bronze tier through the raw store.
package generate

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/stratumdb/stratum/pkg/config"
	"github.com/stratumdb/stratum/pkg/logger"
	"github.com/stratumdb/stratum/pkg/store/raw"
)

// Dirtiness rates, fractions of generated rows.
const (
	nullAmountRate = 0.05
	duplicateRate  = 0.02
	nullCityRate   = 0.03
	cityChurnRate  = 0.10
)

const (
	carriers     = 4
	categories   = 6
	statusStates = 4
)

var shipmentStatuses = []string{"pending", "in_transit", "delivered", "delayed"}

// Producer writes synthetic entity batches into a raw store.
type Producer struct {
	store *raw.Store
	faker *gofakeit.Faker
	cfg   config.GenerateConfig
	log   *zap.Logger

	userIDs    []string
	userCities map[string]string
	productIDs []string
	storeIDs   []string
}

// New creates a producer. A zero seed derives one from the clock, so
// repeated invocations produce different data; a fixed seed reproduces
// the same batches.
func New(store *raw.Store, cfg config.GenerateConfig, log *zap.Logger) *Producer {
	if log == nil {
		log = logger.Get()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Producer{
		store:      store,
		faker:      gofakeit.New(seed),
		cfg:        cfg,
		log:        log,
		userCities: make(map[string]string),
	}
}

// Generate writes one batch per entity: reference pools first, then the
// event entities that draw from them, so the output is referentially
// complete even before cleaning.
func (p *Producer) Generate(ctx context.Context) error {
	p.buildPools()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"users", p.writeUsers},
		{"products", p.writeProducts},
		{"stores", p.writeStores},
		{"transactions", p.writeTransactions},
		{"inventory", p.writeInventory},
		{"shipments", p.writeShipments},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.fn(); err != nil {
			return err
		}
		p.log.Debug("generated batch", zap.String("entity", step.name))
	}

	p.log.Info("synthetic batches written",
		zap.Int("users", p.cfg.Users),
		zap.Int("products", p.cfg.Products),
		zap.Int("stores", p.cfg.Stores),
		zap.Int("transactions", p.cfg.Transactions))
	return nil
}

func (p *Producer) buildPools() {
	if p.userIDs != nil {
		return
	}
	p.userIDs = make([]string, p.cfg.Users)
	for i := range p.userIDs {
		p.userIDs[i] = fmt.Sprintf("USER_%04d", i+1)
	}
	p.productIDs = make([]string, p.cfg.Products)
	for i := range p.productIDs {
		p.productIDs[i] = fmt.Sprintf("PROD_%04d", i+1)
	}
	p.storeIDs = make([]string, p.cfg.Stores)
	for i := range p.storeIDs {
		p.storeIDs[i] = fmt.Sprintf("STORE_%03d", i+1)
	}
}

func (p *Producer) writeUsers() error {
	columns := []string{"user_id", "name", "email", "city", "signup_date"}
	rows := make([][]interface{}, 0, len(p.userIDs))
	for _, id := range p.userIDs {
		city, known := p.userCities[id]
		switch {
		case !known, p.faker.Float64Range(0, 1) < cityChurnRate:
			city = p.faker.City()
			p.userCities[id] = city
		}

		var cityCell interface{} = city
		if p.faker.Float64Range(0, 1) < nullCityRate {
			cityCell = nil
		}

		rows = append(rows, []interface{}{
			id,
			p.faker.Name(),
			p.faker.Email(),
			cityCell,
			p.faker.DateRange(
				time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
			).Format("2006-01-02"),
		})
	}
	_, err := p.store.Append("users", columns, rows)
	return err
}

func (p *Producer) writeProducts() error {
	columns := []string{"product_id", "product_name", "category", "price"}
	rows := make([][]interface{}, 0, len(p.productIDs))
	for _, id := range p.productIDs {
		rows = append(rows, []interface{}{
			id,
			p.faker.ProductName(),
			fmt.Sprintf("Category_%d", p.faker.IntRange(1, categories)),
			p.faker.Price(1, 500),
		})
	}
	_, err := p.store.Append("products", columns, rows)
	return err
}

func (p *Producer) writeStores() error {
	columns := []string{"store_id", "region", "city"}
	rows := make([][]interface{}, 0, len(p.storeIDs))
	for _, id := range p.storeIDs {
		rows = append(rows, []interface{}{
			id,
			"Region_" + id[len(id)-3:],
			p.faker.City(),
		})
	}
	_, err := p.store.Append("stores", columns, rows)
	return err
}

func (p *Producer) writeTransactions() error {
	columns := []string{"transaction_id", "user_id", "product_id", "timestamp", "amount", "store_id"}
	rows := make([][]interface{}, 0, p.cfg.Transactions)
	for i := 0; i < p.cfg.Transactions; i++ {
		var amount interface{} = p.faker.Price(1, 1000)
		if p.faker.Float64Range(0, 1) < nullAmountRate {
			amount = nil
		}

		row := []interface{}{
			fmt.Sprintf("TXN_%06d", i+1),
			p.pick(p.userIDs),
			p.pick(p.productIDs),
			p.faker.DateRange(
				time.Now().UTC().AddDate(0, 0, -30),
				time.Now().UTC(),
			).Format(time.RFC3339),
			amount,
			p.pick(p.storeIDs),
		}
		rows = append(rows, row)

		if p.faker.Float64Range(0, 1) < duplicateRate {
			dup := make([]interface{}, len(row))
			copy(dup, row)
			rows = append(rows, dup)
		}
	}
	_, err := p.store.Append("transactions", columns, rows)
	return err
}

func (p *Producer) writeInventory() error {
	columns := []string{"product_id", "store_id", "stock_level", "reorder_point", "last_restock_date", "stock_status"}
	var rows [][]interface{}
	for _, productID := range p.productIDs {
		for _, storeID := range p.storeIDs {
			stock := int64(p.faker.IntRange(0, 200))
			reorder := int64(p.faker.IntRange(10, 50))
			status := "ok"
			if stock <= reorder {
				status = "low"
			}
			rows = append(rows, []interface{}{
				productID,
				storeID,
				stock,
				reorder,
				p.faker.DateRange(
					time.Now().UTC().AddDate(0, 0, -60),
					time.Now().UTC(),
				).Format("2006-01-02"),
				status,
			})
		}
	}
	_, err := p.store.Append("inventory", columns, rows)
	return err
}

func (p *Producer) writeShipments() error {
	columns := []string{"shipment_id", "transaction_id", "origin_store_id", "dest_store_id",
		"shipped_date", "delivered_date", "delivery_days", "carrier",
		"tracking_number", "status", "shipping_cost"}

	count := p.cfg.Transactions / 2
	rows := make([][]interface{}, 0, count)
	for i := 0; i < count; i++ {
		shipped := p.faker.DateRange(
			time.Now().UTC().AddDate(0, 0, -30),
			time.Now().UTC().AddDate(0, 0, -8),
		)
		status := shipmentStatuses[p.faker.IntRange(0, statusStates-1)]

		var delivered, deliveryDays interface{}
		if status == "delivered" {
			days := p.faker.IntRange(1, 10)
			delivered = shipped.AddDate(0, 0, days).Format("2006-01-02")
			deliveryDays = int64(days)
		}

		rows = append(rows, []interface{}{
			fmt.Sprintf("SHIP_%06d", i+1),
			fmt.Sprintf("TXN_%06d", p.faker.IntRange(1, p.cfg.Transactions)),
			p.pick(p.storeIDs),
			p.pick(p.storeIDs),
			shipped.Format("2006-01-02"),
			delivered,
			deliveryDays,
			fmt.Sprintf("Carrier_%d", p.faker.IntRange(1, carriers)),
			p.faker.LetterN(2)+fmt.Sprintf("%08d", p.faker.IntRange(1, 99999999)),
			status,
			p.faker.Price(2, 50),
		})
	}
	_, err := p.store.Append("shipments", columns, rows)
	return err
}

func (p *Producer) pick(pool []string) string {
	return pool[p.faker.IntRange(0, len(pool)-1)]
}
