package ingest

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendaops/salesync/internal/rfv"
	"github.com/vendaops/salesync/internal/sheet"
	"github.com/vendaops/salesync/internal/store"
)

func testTable(rows []sheet.RawRow) *sheet.Table {
	return &sheet.Table{
		SheetName:     "Vendas",
		Headers:       []string{"Data", "Vendedor", "Cliente", "Setor", "Valor Vendido", "Valor Pago"},
		Rows:          rows,
		FirstDataLine: 2,
	}
}

func row(date, seller, client, sold, paid string) sheet.RawRow {
	return sheet.RawRow{
		"Data":          date,
		"Vendedor":      seller,
		"Cliente":       client,
		"Setor":         "Estética",
		"Valor Vendido": sold,
		"Valor Pago":    paid,
	}
}

func newTestImporter(t *testing.T) (*Importer, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	st.SeedDirectory(
		[]store.User{{ID: anaID, FullName: "Ana Paula Souza", FirstName: "Ana", TeamID: teamID}},
		nil,
		[]store.ClientIdentity{{ID: clientID, Name: "José da Silva"}},
	)
	engine := rfv.NewEngine(st, slog.Default())
	return NewImporter(st, engine, ImporterOptions{Parallelism: 2}), st
}

func TestImporter_Run(t *testing.T) {
	im, st := newTestImporter(t)
	ctx := context.Background()

	table := testTable([]sheet.RawRow{
		row("15/01/2024", "Ana", "José da Silva", "1.000,00", "500,00"),
		row("15/01/2024", "Ana", "José da Silva", "1.000,00", "500,00"), // in-file duplicate
		row("16/01/2024", "Desconhecida", "Maria", "200,00", ""),
		row("???", "Ana", "José da Silva", "300,00", ""),
		row("", "", "TOTAL", "1.500,00", ""), // summary line
	})

	outcome, err := im.Run(ctx, ImportRequest{FileName: "vendas.xlsx", UploadedBy: "tester", Table: table})
	require.NoError(t, err)

	res := outcome.Result
	assert.Equal(t, 4, res.TotalRows, "summary rows must not be counted")
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 1, res.Unmatched)
	assert.Equal(t, 1, res.ErrorRows)
	assert.Len(t, res.ReviewRows, 2)

	// Only the one committed row reaches the ledger.
	records, err := st.ListRecords(ctx, store.RecordFilter{Ledger: store.LedgerSold})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 500.0, records[0].Amount, "paid amount wins over sold")
	assert.Equal(t, anaID, records[0].AttributedUserID)
	assert.Equal(t, teamID, records[0].TeamID)

	// Audit trail records the batch outcome.
	logs, err := st.ListAuditLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "completed", logs[0].Status)
	assert.Equal(t, res.AuditID, logs[0].ID)
	assert.Equal(t, "vendas.xlsx", logs[0].FileName)
	assert.Equal(t, 4, logs[0].TotalRows)
	assert.InDelta(t, 2200.0, logs[0].RevenueSold, 0.001, "audit totals cover all non-error rows")

	// Rollups are computed for the whole batch, not just committed rows.
	require.NotNil(t, outcome.Metrics)
	assert.Equal(t, 3, outcome.Metrics.SaleCount)

	// The committed purchase seeded the customer base.
	customers, err := st.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, 1, customers[0].TotalPurchases)
	assert.Equal(t, 500.0, customers[0].TotalValue)
	assert.NotEmpty(t, customers[0].Segment)
}

func TestImporter_RunIsIdempotent(t *testing.T) {
	im, st := newTestImporter(t)
	ctx := context.Background()

	table := testTable([]sheet.RawRow{
		row("15/01/2024", "Ana", "José da Silva", "1.000,00", "500,00"),
		row("16/01/2024", "Ana", "José da Silva", "800,00", ""),
	})

	first, err := im.Run(ctx, ImportRequest{FileName: "vendas.xlsx", Table: table})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Result.Success)

	second, err := im.Run(ctx, ImportRequest{FileName: "vendas.xlsx", Table: table})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Result.Success)
	assert.Equal(t, 2, second.Result.Skipped)

	records, err := st.ListRecords(ctx, store.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// Re-importing must not inflate customer totals.
	customers, err := st.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, 2, customers[0].TotalPurchases)
	assert.InDelta(t, 1300.0, customers[0].TotalValue, 0.001)
}

func TestImporter_RowInsertFailureDoesNotAbortBatch(t *testing.T) {
	im, st := newTestImporter(t)
	ctx := context.Background()

	st.FailInsert(store.LedgerSold, date(2024, 1, 15), anaID, 50000, errors.New("connection reset"))

	table := testTable([]sheet.RawRow{
		row("15/01/2024", "Ana", "José da Silva", "1.000,00", "500,00"),
		row("16/01/2024", "Ana", "José da Silva", "800,00", ""),
	})

	outcome, err := im.Run(ctx, ImportRequest{FileName: "vendas.xlsx", Table: table})
	require.NoError(t, err, "row failures must not fail the batch")

	res := outcome.Result
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Success)
	require.Len(t, res.FailedRows, 1)
	assert.Equal(t, 2, res.FailedRows[0].Line)
	assert.Contains(t, res.FailedRows[0].ErrorMessage, "connection reset")

	logs, err := st.ListAuditLogs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "completed_with_failures", logs[0].Status)
}

func TestImporter_MappingIncompleteBlocksBatch(t *testing.T) {
	im, st := newTestImporter(t)
	ctx := context.Background()

	table := &sheet.Table{
		SheetName:     "Vendas",
		Headers:       []string{"Data", "Cliente", "Observações"},
		Rows:          []sheet.RawRow{{"Data": "15/01/2024"}},
		FirstDataLine: 2,
	}

	_, err := im.Run(ctx, ImportRequest{FileName: "vendas.xlsx", Table: table})
	var incomplete *MappingIncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Contains(t, incomplete.Missing, "sellerName")

	// Nothing was persisted, but the attempt is on the audit trail.
	records, err := st.ListRecords(ctx, store.RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)

	logs, err := st.ListAuditLogs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "mapping_incomplete", logs[0].Status)
}

func TestImporter_ExplicitMappingOverride(t *testing.T) {
	im, st := newTestImporter(t)
	ctx := context.Background()

	// Headers too unusual for heuristics; the caller supplies the mapping.
	table := &sheet.Table{
		SheetName:     "Planilha1",
		Headers:       []string{"Quando", "Quem Vendeu", "Quanto"},
		Rows:          []sheet.RawRow{{"Quando": "15/01/2024", "Quem Vendeu": "Ana", "Quanto": "350,00"}},
		FirstDataLine: 2,
	}
	mapping := &ColumnMapping{Date: "Quando", SellerName: "Quem Vendeu", AmountSold: "Quanto"}

	outcome, err := im.Run(ctx, ImportRequest{FileName: "legado.csv", Table: table, Mapping: mapping})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Result.Success)

	records, err := st.ListRecords(ctx, store.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 350.0, records[0].Amount)
}

func TestImporter_ExplicitMappingStillValidated(t *testing.T) {
	im, _ := newTestImporter(t)

	mapping := &ColumnMapping{Date: "Quando"}
	_, err := im.Run(context.Background(), ImportRequest{
		FileName: "legado.csv",
		Table:    testTable(nil),
		Mapping:  mapping,
	})

	var incomplete *MappingIncompleteError
	require.ErrorAs(t, err, &incomplete)
}

func TestImporter_RejectsUnknownLedger(t *testing.T) {
	im, _ := newTestImporter(t)

	_, err := im.Run(context.Background(), ImportRequest{
		Ledger: "imaginary",
		Table:  testTable(nil),
	})
	require.Error(t, err)
}

func TestImporter_ExecutedLedgerIsSeparate(t *testing.T) {
	im, st := newTestImporter(t)
	ctx := context.Background()

	table := testTable([]sheet.RawRow{
		row("15/01/2024", "Ana", "José da Silva", "1.000,00", ""),
	})

	_, err := im.Run(ctx, ImportRequest{FileName: "v.xlsx", Ledger: store.LedgerSold, Table: table})
	require.NoError(t, err)
	outcome, err := im.Run(ctx, ImportRequest{FileName: "v.xlsx", Ledger: store.LedgerExecuted, Table: table})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Result.Success, "ledgers dedup independently")

	sold, _ := st.ListRecords(ctx, store.RecordFilter{Ledger: store.LedgerSold})
	executed, _ := st.ListRecords(ctx, store.RecordFilter{Ledger: store.LedgerExecuted})
	assert.Len(t, sold, 1)
	assert.Len(t, executed, 1)
}
