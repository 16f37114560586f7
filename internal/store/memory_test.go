package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var (
	testUser = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testTeam = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func testDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAmountCents(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{1234.56, 123456},
		{0.1 + 0.2, 30}, // float noise must not leak into the key
		{99.999, 10000},
		{0, 0},
	}
	for _, tt := range tests {
		if got := AmountCents(tt.in); got != tt.want {
			t.Errorf("AmountCents(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLedgerValid(t *testing.T) {
	if !LedgerSold.Valid() || !LedgerExecuted.Valid() {
		t.Error("known ledgers must be valid")
	}
	if Ledger("other").Valid() || Ledger("").Valid() {
		t.Error("unknown ledgers must be invalid")
	}
}

func TestMemoryStore_CompositeKeyDedup(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	date := testDate(2024, 1, 15)

	rec := FinancialRecord{Date: date, Amount: 500, AttributedUserID: testUser}
	if err := st.InsertRecord(ctx, LedgerSold, rec); err != nil {
		t.Fatalf("InsertRecord() error = %v", err)
	}

	got, err := st.FindByCompositeKey(ctx, LedgerSold, date, testUser, 50000)
	if err != nil {
		t.Fatalf("FindByCompositeKey() error = %v", err)
	}
	if got.Amount != 500 {
		t.Errorf("Amount = %v, want 500", got.Amount)
	}

	// Same key, other ledger: no hit.
	if _, err := st.FindByCompositeKey(ctx, LedgerExecuted, date, testUser, 50000); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-ledger lookup error = %v, want ErrNotFound", err)
	}
	// Different amount: no hit.
	if _, err := st.FindByCompositeKey(ctx, LedgerSold, date, testUser, 50001); !errors.Is(err, ErrNotFound) {
		t.Errorf("different amount lookup error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ListRecordsFilter(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	other := uuid.New()

	records := []FinancialRecord{
		{Date: testDate(2024, 1, 10), Amount: 100, AttributedUserID: testUser, TeamID: testTeam},
		{Date: testDate(2024, 1, 20), Amount: 200, AttributedUserID: testUser, TeamID: testTeam},
		{Date: testDate(2024, 2, 5), Amount: 300, AttributedUserID: other},
	}
	for _, r := range records {
		if err := st.InsertRecord(ctx, LedgerSold, r); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter RecordFilter
		want   int
	}{
		{"all", RecordFilter{}, 3},
		{"by ledger", RecordFilter{Ledger: LedgerSold}, 3},
		{"other ledger", RecordFilter{Ledger: LedgerExecuted}, 0},
		{"by user", RecordFilter{UserID: testUser}, 2},
		{"by team", RecordFilter{TeamID: testTeam}, 2},
		{"by window", RecordFilter{From: testDate(2024, 1, 15), To: testDate(2024, 2, 1)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.ListRecords(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListRecords() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("ListRecords() length = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestMemoryStore_Customers(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	c := CustomerProfile{ID: uuid.New(), Name: "José", NationalID: "12345678901", TotalValue: 100}
	if err := st.UpsertCustomer(ctx, c); err != nil {
		t.Fatalf("UpsertCustomer() error = %v", err)
	}

	got, err := st.FindCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("FindCustomerByID() error = %v", err)
	}
	if got.Name != "José" {
		t.Errorf("Name = %q", got.Name)
	}

	got, err = st.FindCustomerByNationalID(ctx, "12345678901")
	if err != nil {
		t.Fatalf("FindCustomerByNationalID() error = %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("ID = %s, want %s", got.ID, c.ID)
	}

	// Upsert replaces.
	c.TotalValue = 250
	if err := st.UpsertCustomer(ctx, c); err != nil {
		t.Fatal(err)
	}
	all, err := st.ListCustomers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].TotalValue != 250 {
		t.Errorf("after upsert: %+v", all)
	}

	if _, err := st.FindCustomerByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing customer error = %v, want ErrNotFound", err)
	}
	if err := st.UpsertCustomer(ctx, CustomerProfile{}); err == nil {
		t.Error("UpsertCustomer() must reject a missing id")
	}
}

func TestMemoryStore_AuditLogsNewestFirst(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	older := UploadAuditLog{FileName: "a.xlsx", CreatedAt: testDate(2024, 1, 1)}
	newer := UploadAuditLog{FileName: "b.xlsx", CreatedAt: testDate(2024, 2, 1)}
	for _, l := range []UploadAuditLog{older, newer} {
		if err := st.InsertAuditLog(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	logs, err := st.ListAuditLogs(ctx, 10)
	if err != nil {
		t.Fatalf("ListAuditLogs() error = %v", err)
	}
	if len(logs) != 2 || logs[0].FileName != "b.xlsx" {
		t.Errorf("logs order = %v", logs)
	}

	logs, _ = st.ListAuditLogs(ctx, 1)
	if len(logs) != 1 {
		t.Errorf("limit ignored, got %d entries", len(logs))
	}
}

func TestMemoryStore_FailInsert(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	date := testDate(2024, 1, 15)
	boom := errors.New("boom")

	st.FailInsert(LedgerSold, date, testUser, 50000, boom)

	err := st.InsertRecord(ctx, LedgerSold, FinancialRecord{Date: date, Amount: 500, AttributedUserID: testUser})
	if !errors.Is(err, boom) {
		t.Errorf("InsertRecord() error = %v, want forced failure", err)
	}
}
