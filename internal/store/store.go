// Package store defines the persistence contract for the reconciliation
// pipeline and the RFV customer ledger. The pipeline only ever talks to the
// Store interface; PostgreSQL and in-memory implementations live alongside.
package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Ledger selects which financial ledger a record belongs to.
type Ledger string

const (
	LedgerSold     Ledger = "sold"
	LedgerExecuted Ledger = "executed"
)

// Valid reports whether the ledger is one of the two known ledgers.
func (l Ledger) Valid() bool {
	return l == LedgerSold || l == LedgerExecuted
}

// FinancialRecord is a committed, reconciled sale row.
type FinancialRecord struct {
	ID               uuid.UUID
	Date             time.Time
	Amount           float64
	Department       string
	AttributedUserID uuid.UUID
	TeamID           uuid.UUID
	Notes            string
	CreatedAt        time.Time
}

// AmountCents returns the record amount in integer cents.
// The composite dedup key compares amounts in cents so that two parses of
// the same cell can never disagree on the last bit of a float.
func AmountCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CustomerProfile is one identity in the RFV ledger. Created on the first
// reconciled purchase, mutated on every subsequent one, never deleted.
type CustomerProfile struct {
	ID                    uuid.UUID
	Name                  string
	NationalID            string
	RecordNumber          string
	FirstPurchaseDate     time.Time
	LastPurchaseDate      time.Time
	TotalPurchases        int
	TotalValue            float64
	AverageTicket         float64
	RecencyScore          int
	FrequencyScore        int
	ValueScore            int
	Segment               string
	DaysSinceLastPurchase int
	UpdatedAt             time.Time
}

// UploadAuditLog is an immutable record of one import attempt.
type UploadAuditLog struct {
	ID          uuid.UUID
	FileName    string
	SheetName   string
	UploadedBy  string
	TotalRows   int
	Success     int
	Failed      int
	Skipped     int
	Unmatched   int
	ErrorRows   int
	RevenueSold float64
	RevenuePaid float64
	DateFrom    time.Time
	DateTo      time.Time
	Status      string
	CreatedAt   time.Time
}

// User is a canonical internal identity that sales can be attributed to.
type User struct {
	ID        uuid.UUID
	FullName  string
	FirstName string
	TeamID    uuid.UUID
}

// SellerAlias maps a known spreadsheet seller spelling to a user.
type SellerAlias struct {
	Alias  string
	UserID uuid.UUID
}

// ClientIdentity is a canonical client used to merge cross-source records.
type ClientIdentity struct {
	ID           uuid.UUID
	Name         string
	NationalID   string
	RecordNumber string
}

// RecordFilter narrows ListRecords. Zero values mean "no constraint".
type RecordFilter struct {
	Ledger Ledger
	UserID uuid.UUID
	TeamID uuid.UUID
	From   time.Time
	To     time.Time
}

// LedgerStore persists financial records with composite-key dedup support.
type LedgerStore interface {
	// FindByCompositeKey returns the record matching (date, user, amount)
	// in the given ledger, or ErrNotFound.
	FindByCompositeKey(ctx context.Context, ledger Ledger, date time.Time, userID uuid.UUID, amountCents int64) (*FinancialRecord, error)
	InsertRecord(ctx context.Context, ledger Ledger, rec FinancialRecord) error
	ListRecords(ctx context.Context, f RecordFilter) ([]FinancialRecord, error)
}

// CustomerStore persists the RFV customer ledger.
type CustomerStore interface {
	ListCustomers(ctx context.Context) ([]CustomerProfile, error)
	UpsertCustomer(ctx context.Context, c CustomerProfile) error
	FindCustomerByID(ctx context.Context, id uuid.UUID) (*CustomerProfile, error)
	FindCustomerByNationalID(ctx context.Context, nationalID string) (*CustomerProfile, error)
}

// AuditStore persists upload audit logs.
type AuditStore interface {
	InsertAuditLog(ctx context.Context, log UploadAuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]UploadAuditLog, error)
}

// Directory serves the immutable lookup tables the entity resolver reads.
type Directory interface {
	ListUsers(ctx context.Context) ([]User, error)
	ListSellerAliases(ctx context.Context) ([]SellerAlias, error)
	ListClientIdentities(ctx context.Context) ([]ClientIdentity, error)
}

// Store is the full persistence surface consumed by the pipeline.
type Store interface {
	LedgerStore
	CustomerStore
	AuditStore
	Directory
}
