package rfv

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vendaops/salesync/internal/store"
	"github.com/vendaops/salesync/internal/strutil"
)

// Purchase is one reconciled sale feeding the customer ledger.
type Purchase struct {
	Name         string
	NationalID   string
	RecordNumber string
	Date         time.Time
	Amount       float64
}

// Engine maintains customer profiles and their population-relative scores.
//
// Apply runs two phases under one global lock: per-identity stat upserts
// for the batch, then a full-population rescore. The lock is deliberate:
// two interleaved rescores would rank against a half-updated population
// and produce nondeterministic scores.
type Engine struct {
	customers store.CustomerStore
	logger    *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewEngine creates an Engine over the customer store.
func NewEngine(customers store.CustomerStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		customers: customers,
		logger:    logger,
		now:       time.Now,
	}
}

// Apply folds a batch of purchases into the ledger and rescores the whole
// population. Scoring failures on individual customers are logged and
// skipped; they never abort the pass.
func (e *Engine) Apply(ctx context.Context, purchases []Purchase) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.upsertBatch(ctx, purchases); err != nil {
		return err
	}
	return e.rescoreLocked(ctx)
}

// Rescore recomputes every customer's scores without ingesting purchases.
func (e *Engine) Rescore(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rescoreLocked(ctx)
}

func (e *Engine) upsertBatch(ctx context.Context, purchases []Purchase) error {
	if len(purchases) == 0 {
		return nil
	}

	existing, err := e.customers.ListCustomers(ctx)
	if err != nil {
		return fmt.Errorf("list customers: %w", err)
	}

	byNationalID := make(map[string]*store.CustomerProfile)
	byRecord := make(map[string]*store.CustomerProfile)
	byName := make(map[string]*store.CustomerProfile)
	index := func(c *store.CustomerProfile) {
		if id := strutil.DigitsOnly(c.NationalID); id != "" {
			byNationalID[id] = c
		}
		if c.RecordNumber != "" {
			byRecord[c.RecordNumber] = c
		}
		if name := strutil.NormalizeName(c.Name); name != "" {
			byName[name] = c
		}
	}

	profiles := make([]*store.CustomerProfile, len(existing))
	for i := range existing {
		profiles[i] = &existing[i]
		index(profiles[i])
	}

	touched := make(map[uuid.UUID]*store.CustomerProfile)
	now := e.now()

	var anonymous int
	for _, p := range purchases {
		nationalID := strutil.DigitsOnly(p.NationalID)
		name := strutil.NormalizeName(p.Name)
		// A purchase with no identity key cannot be attached to anyone and
		// could never merge with a later one; it stays out of the ledger.
		if nationalID == "" && p.RecordNumber == "" && name == "" {
			anonymous++
			continue
		}

		var c *store.CustomerProfile
		if nationalID != "" {
			c = byNationalID[nationalID]
		}
		if c == nil && p.RecordNumber != "" {
			c = byRecord[p.RecordNumber]
		}
		if c == nil && name != "" {
			c = byName[name]
		}

		if c == nil {
			c = &store.CustomerProfile{
				ID:                uuid.New(),
				Name:              p.Name,
				NationalID:        p.NationalID,
				RecordNumber:      p.RecordNumber,
				FirstPurchaseDate: p.Date,
				LastPurchaseDate:  p.Date,
			}
			profiles = append(profiles, c)
			index(c)
		} else {
			if c.FirstPurchaseDate.IsZero() || p.Date.Before(c.FirstPurchaseDate) {
				c.FirstPurchaseDate = p.Date
			}
			if p.Date.After(c.LastPurchaseDate) {
				c.LastPurchaseDate = p.Date
			}
			if c.NationalID == "" && p.NationalID != "" {
				c.NationalID = p.NationalID
			}
			if c.RecordNumber == "" && p.RecordNumber != "" {
				c.RecordNumber = p.RecordNumber
			}
		}

		c.TotalPurchases++
		c.TotalValue += p.Amount
		c.AverageTicket = c.TotalValue / float64(c.TotalPurchases)
		c.DaysSinceLastPurchase = daysBetween(c.LastPurchaseDate, now)
		touched[c.ID] = c
	}

	if anonymous > 0 {
		e.logger.Warn("skipped purchases without customer identity",
			"count", anonymous,
		)
	}

	for _, c := range touched {
		if err := e.customers.UpsertCustomer(ctx, *c); err != nil {
			return fmt.Errorf("upsert customer %s: %w", c.ID, err)
		}
	}
	return nil
}

// rescoreLocked rewrites every customer with fresh quintile scores and
// segment. Callers must hold e.mu.
func (e *Engine) rescoreLocked(ctx context.Context) error {
	customers, err := e.customers.ListCustomers(ctx)
	if err != nil {
		return fmt.Errorf("list customers: %w", err)
	}
	if len(customers) == 0 {
		return nil
	}

	now := e.now()
	days := make([]float64, len(customers))
	purchases := make([]float64, len(customers))
	values := make([]float64, len(customers))
	for i := range customers {
		customers[i].DaysSinceLastPurchase = daysBetween(customers[i].LastPurchaseDate, now)
		days[i] = float64(customers[i].DaysSinceLastPurchase)
		purchases[i] = float64(customers[i].TotalPurchases)
		values[i] = customers[i].TotalValue
	}
	pop := buildPopulationScores(days, purchases, values)

	var failed int
	for i := range customers {
		c := &customers[i]
		r, f, v := pop.score(days[i], purchases[i], values[i])
		c.RecencyScore = r
		c.FrequencyScore = f
		c.ValueScore = v
		c.Segment = Classify(r, f, v)

		// Every customer is rewritten even when unchanged: the scores are
		// population-relative and any batch can shift them.
		if err := e.customers.UpsertCustomer(ctx, *c); err != nil {
			failed++
			e.logger.Error("rfv rescore failed for customer",
				"customer_id", c.ID,
				"error", err,
			)
			continue
		}
	}

	if failed > 0 {
		e.logger.Warn("rfv rescore completed with failures",
			"total", len(customers),
			"failed", failed,
		)
	}
	return nil
}

func daysBetween(from, to time.Time) int {
	if from.IsZero() {
		return 0
	}
	d := int(to.Sub(from).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
