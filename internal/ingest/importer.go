package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vendaops/salesync/internal/metrics"
	"github.com/vendaops/salesync/internal/rfv"
	"github.com/vendaops/salesync/internal/sheet"
	"github.com/vendaops/salesync/internal/store"
)

// Audit log statuses.
const (
	auditStatusCompleted    = "completed"
	auditStatusWithFailures = "completed_with_failures"
	auditStatusMappingError = "mapping_incomplete"
)

// ImportRequest describes one import batch.
type ImportRequest struct {
	FileName   string
	UploadedBy string
	Ledger     store.Ledger
	Table      *sheet.Table
	// Mapping, when non-nil, is the human-supplied mapping used instead of
	// heuristic resolution (the path taken after a MappingIncompleteError).
	Mapping *ColumnMapping
}

// ImportOutcome bundles the batch result with the rollups computed for it.
type ImportOutcome struct {
	Result  ImportResult          `json:"result"`
	Mapping ColumnMapping         `json:"mapping"`
	Metrics *metrics.BatchMetrics `json:"metrics"`
}

// ImporterOptions tunes an Importer. Zero values take defaults.
type ImporterOptions struct {
	// Keywords overrides the column detection keyword sets.
	Keywords *MappingKeywords
	// ExcludedDepartments overrides the display denylist.
	ExcludedDepartments []string
	// TopClientLimit bounds the top-clients ranking.
	TopClientLimit int
	// Parallelism bounds concurrent row normalization. Zero means 4.
	Parallelism int
	Logger      *slog.Logger
}

// Importer runs the reconciliation pipeline: mapping, normalization,
// entity resolution, dedup persistence, metrics and the RFV trigger.
type Importer struct {
	store       store.Store
	engine      *rfv.Engine
	logger      *slog.Logger
	keywords    MappingKeywords
	metricsOpts metrics.Options
	parallelism int
}

// NewImporter wires the pipeline over a store and an RFV engine.
func NewImporter(st store.Store, engine *rfv.Engine, opts ImporterOptions) *Importer {
	kw := DefaultMappingKeywords()
	if opts.Keywords != nil {
		kw = *opts.Keywords
	}
	excluded := opts.ExcludedDepartments
	if excluded == nil {
		excluded = metrics.DefaultExcludedDepartments()
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:    st,
		engine:   engine,
		logger:   logger,
		keywords: kw,
		metricsOpts: metrics.Options{
			ExcludedDepartments: excluded,
			TopClientLimit:      opts.TopClientLimit,
		},
		parallelism: parallelism,
	}
}

// Run processes one batch end to end. Only a MappingIncompleteError (or a
// failure loading the lookup tables) aborts the batch; every row-level
// problem is recovered and reported in the result.
func (im *Importer) Run(ctx context.Context, req ImportRequest) (*ImportOutcome, error) {
	if req.Table == nil {
		return nil, fmt.Errorf("import: nil table")
	}
	ledger := req.Ledger
	if ledger == "" {
		ledger = store.LedgerSold
	}
	if !ledger.Valid() {
		return nil, fmt.Errorf("import: unknown ledger %q", req.Ledger)
	}

	logger := im.logger.With("file", req.FileName, "sheet", req.Table.SheetName, "ledger", ledger)

	mapping, err := im.resolveMapping(req)
	if err != nil {
		var incomplete *MappingIncompleteError
		if errors.As(err, &incomplete) {
			logger.Warn("column mapping incomplete", "missing", incomplete.Missing)
			im.writeAudit(ctx, req, store.UploadAuditLog{Status: auditStatusMappingError})
		}
		return nil, err
	}

	resolver, err := im.buildResolver(ctx)
	if err != nil {
		return nil, err
	}

	sales := im.normalize(ctx, req.Table, mapping)
	for i := range sales {
		resolver.Resolve(&sales[i])
	}

	outcome := &ImportOutcome{Mapping: mapping}
	result := &outcome.Result
	result.TotalRows = len(sales)

	// Persistence is serialized: the composite-key check-then-insert is
	// not atomic, so two concurrent inserts of the same key could both
	// pass the check.
	var purchases []rfv.Purchase
	for i := range sales {
		sale := &sales[i]
		switch sale.Status {
		case StatusError:
			result.ErrorRows++
			result.ReviewRows = append(result.ReviewRows, *sale)
			continue
		case StatusUnmatched:
			result.Unmatched++
			result.ReviewRows = append(result.ReviewRows, *sale)
			continue
		}

		amount := sale.PrimaryAmount()
		committed, err := im.commitRow(ctx, ledger, sale, amount)
		if err != nil {
			result.Failed++
			result.FailedRows = append(result.FailedRows, RowError{
				Line:         sale.Line,
				Row:          *sale,
				ErrorMessage: err.Error(),
			})
			logger.Error("row insert failed", "line", sale.Line, "error", err)
			continue
		}
		if !committed {
			result.Skipped++
			continue
		}
		result.Success++
		purchases = append(purchases, rfv.Purchase{
			Name:   sale.ClientName,
			Date:   sale.Date,
			Amount: amount,
		})
	}

	outcome.Metrics = im.aggregate(sales)

	status := auditStatusCompleted
	if result.Failed > 0 {
		status = auditStatusWithFailures
	}
	audit := store.UploadAuditLog{Status: status}
	fillAudit(&audit, result, outcome.Metrics, sales)
	result.AuditID = im.writeAudit(ctx, req, audit)

	// One segmentation pass per completed batch, fed only by newly
	// committed rows so re-imports cannot inflate customer totals.
	if im.engine != nil && len(purchases) > 0 {
		if err := im.engine.Apply(ctx, purchases); err != nil {
			logger.Error("rfv segmentation pass failed", "error", err)
		}
	}

	logger.Info("import completed",
		"total", result.TotalRows,
		"success", result.Success,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"unmatched", result.Unmatched,
		"error_rows", result.ErrorRows,
	)
	return outcome, nil
}

// PreviewMapping resolves a column mapping from headers with the importer's
// configured keyword sets, without running the pipeline. Previews and
// imports therefore always agree on the mapping.
func (im *Importer) PreviewMapping(headers []string) (ColumnMapping, error) {
	return ResolveMapping(headers, im.keywords)
}

func (im *Importer) resolveMapping(req ImportRequest) (ColumnMapping, error) {
	if req.Mapping != nil {
		m := *req.Mapping
		var missing []string
		if m.Date == "" {
			missing = append(missing, "date")
		}
		if m.SellerName == "" {
			missing = append(missing, "sellerName")
		}
		if m.AmountSold == "" && m.AmountPaid == "" {
			missing = append(missing, "amountSold/amountPaid")
		}
		if len(missing) > 0 {
			return ColumnMapping{}, &MappingIncompleteError{Missing: missing}
		}
		return m, nil
	}
	return ResolveMapping(req.Table.Headers, im.keywords)
}

func (im *Importer) buildResolver(ctx context.Context) (*Resolver, error) {
	users, err := im.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	aliases, err := im.store.ListSellerAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seller aliases: %w", err)
	}
	clients, err := im.store.ListClientIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load client identities: %w", err)
	}
	return NewResolver(users, aliases, clients), nil
}

// normalize runs the pure normalization stage. It parallelizes safely:
// each row reads only the immutable mapping and writes its own slot.
func (im *Importer) normalize(ctx context.Context, table *sheet.Table, mapping ColumnMapping) []ParsedSale {
	type slot struct {
		sale ParsedSale
		keep bool
	}
	slots := make([]slot, len(table.Rows))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(im.parallelism)
	for i := range table.Rows {
		g.Go(func() error {
			line := table.FirstDataLine + i
			sale, keep := NormalizeRow(table.Rows[i], mapping, line)
			slots[i] = slot{sale: sale, keep: keep}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	sales := make([]ParsedSale, 0, len(slots))
	for _, s := range slots {
		if s.keep {
			sales = append(sales, s.sale)
		}
	}
	return sales
}

// commitRow performs the idempotent dedup-insert for one matched row.
// Returns false when the composite key already exists.
func (im *Importer) commitRow(ctx context.Context, ledger store.Ledger, sale *ParsedSale, amount float64) (bool, error) {
	cents := store.AmountCents(amount)
	_, err := im.store.FindByCompositeKey(ctx, ledger, sale.Date, sale.MatchedUserID, cents)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}

	rec := store.FinancialRecord{
		ID:               uuid.New(),
		Date:             sale.Date,
		Amount:           amount,
		Department:       sale.Department,
		AttributedUserID: sale.MatchedUserID,
		TeamID:           sale.MatchedTeamID,
		Notes:            sale.Procedure,
	}
	if err := im.store.InsertRecord(ctx, ledger, rec); err != nil {
		return false, err
	}
	return true, nil
}

func (im *Importer) aggregate(sales []ParsedSale) *metrics.BatchMetrics {
	rows := make([]metrics.Sale, 0, len(sales))
	for _, s := range sales {
		if s.Status == StatusError {
			continue
		}
		rows = append(rows, metrics.Sale{
			Date:       s.Date,
			Department: s.Department,
			Procedure:  s.Procedure,
			Client:     s.ClientName,
			Seller:     s.SellerName,
			SellerID:   s.MatchedUserID,
			TeamID:     s.MatchedTeamID,
			AmountSold: s.AmountSold,
			AmountPaid: s.AmountPaid,
			Matched:    s.Status == StatusMatched,
		})
	}
	return metrics.Aggregate(rows, im.metricsOpts)
}

func fillAudit(audit *store.UploadAuditLog, result *ImportResult, m *metrics.BatchMetrics, sales []ParsedSale) {
	audit.TotalRows = result.TotalRows
	audit.Success = result.Success
	audit.Failed = result.Failed
	audit.Skipped = result.Skipped
	audit.Unmatched = result.Unmatched
	audit.ErrorRows = result.ErrorRows
	if m != nil {
		audit.RevenueSold = m.TotalSold
		audit.RevenuePaid = m.TotalPaid
	}
	for _, s := range sales {
		if s.Status == StatusError {
			continue
		}
		if audit.DateFrom.IsZero() || s.Date.Before(audit.DateFrom) {
			audit.DateFrom = s.Date
		}
		if s.Date.After(audit.DateTo) {
			audit.DateTo = s.Date
		}
	}
}

// writeAudit records the import attempt; audit failures are logged, never
// fatal.
func (im *Importer) writeAudit(ctx context.Context, req ImportRequest, audit store.UploadAuditLog) uuid.UUID {
	audit.ID = uuid.New()
	audit.FileName = req.FileName
	if req.Table != nil {
		audit.SheetName = req.Table.SheetName
	}
	audit.UploadedBy = req.UploadedBy
	if err := im.store.InsertAuditLog(ctx, audit); err != nil {
		im.logger.Error("audit log write failed", "file", req.FileName, "error", err)
		return uuid.Nil
	}
	return audit.ID
}
