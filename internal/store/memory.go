package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation. It backs unit tests and
// local development without a database.
type MemoryStore struct {
	mu sync.RWMutex

	records   map[string]FinancialRecord // composite key -> record
	ordered   []string                   // insertion order of composite keys
	customers map[uuid.UUID]CustomerProfile
	audits    []UploadAuditLog

	users     []User
	aliases   []SellerAlias
	clients   []ClientIdentity
	failKeys  map[string]error // composite key -> forced insert error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]FinancialRecord),
		customers: make(map[uuid.UUID]CustomerProfile),
		failKeys:  make(map[string]error),
	}
}

// SeedDirectory replaces the lookup tables.
func (m *MemoryStore) SeedDirectory(users []User, aliases []SellerAlias, clients []ClientIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = users
	m.aliases = aliases
	m.clients = clients
}

// FailInsert forces InsertRecord to return err for the given composite key.
func (m *MemoryStore) FailInsert(ledger Ledger, date time.Time, userID uuid.UUID, amountCents int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failKeys[compositeKey(ledger, date, userID, amountCents)] = err
}

func compositeKey(ledger Ledger, date time.Time, userID uuid.UUID, amountCents int64) string {
	return fmt.Sprintf("%s|%s|%s|%d", ledger, date.Format("2006-01-02"), userID, amountCents)
}

func (m *MemoryStore) FindByCompositeKey(_ context.Context, ledger Ledger, date time.Time, userID uuid.UUID, amountCents int64) (*FinancialRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[compositeKey(ledger, date, userID, amountCents)]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *MemoryStore) InsertRecord(_ context.Context, ledger Ledger, rec FinancialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := compositeKey(ledger, rec.Date, rec.AttributedUserID, AmountCents(rec.Amount))
	if err, ok := m.failKeys[key]; ok {
		return err
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.records[key] = rec
	m.ordered = append(m.ordered, key)
	return nil
}

func (m *MemoryStore) ListRecords(_ context.Context, f RecordFilter) ([]FinancialRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []FinancialRecord
	for _, key := range m.ordered {
		if f.Ledger != "" && !strings.HasPrefix(key, string(f.Ledger)+"|") {
			continue
		}
		rec := m.records[key]
		if f.UserID != uuid.Nil && rec.AttributedUserID != f.UserID {
			continue
		}
		if f.TeamID != uuid.Nil && rec.TeamID != f.TeamID {
			continue
		}
		if !f.From.IsZero() && rec.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && rec.Date.After(f.To) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemoryStore) ListCustomers(_ context.Context) ([]CustomerProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]CustomerProfile, 0, len(m.customers))
	for _, c := range m.customers {
		out = append(out, c)
	}
	// Deterministic order for tests and for the rescoring pass.
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (m *MemoryStore) UpsertCustomer(_ context.Context, c CustomerProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == uuid.Nil {
		return fmt.Errorf("upsert customer: missing id")
	}
	c.UpdatedAt = time.Now()
	m.customers[c.ID] = c
	return nil
}

func (m *MemoryStore) FindCustomerByID(_ context.Context, id uuid.UUID) (*CustomerProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := c
	return &out, nil
}

func (m *MemoryStore) FindCustomerByNationalID(_ context.Context, nationalID string) (*CustomerProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.customers {
		if c.NationalID != "" && c.NationalID == nationalID {
			out := c
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) InsertAuditLog(_ context.Context, log UploadAuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	m.audits = append(m.audits, log)
	return nil
}

func (m *MemoryStore) ListAuditLogs(_ context.Context, limit int) ([]UploadAuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]UploadAuditLog, len(m.audits))
	copy(out, m.audits)
	// Newest first.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListUsers(_ context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, len(m.users))
	copy(out, m.users)
	return out, nil
}

func (m *MemoryStore) ListSellerAliases(_ context.Context) ([]SellerAlias, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SellerAlias, len(m.aliases))
	copy(out, m.aliases)
	return out, nil
}

func (m *MemoryStore) ListClientIdentities(_ context.Context) ([]ClientIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ClientIdentity, len(m.clients))
	copy(out, m.clients)
	return out, nil
}
