// Package ingest implements the spreadsheet reconciliation pipeline:
// column mapping, row normalization, entity resolution and idempotent
// persistence of resolved sales. Raw spreadsheet rows never leave this
// package; downstream consumers only see typed values.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RowStatus is the outcome of normalizing and resolving one row.
type RowStatus string

const (
	StatusMatched   RowStatus = "matched"
	StatusUnmatched RowStatus = "unmatched"
	StatusError     RowStatus = "error"
)

// ColumnMapping maps canonical fields to spreadsheet header text.
// Built once per import, then treated as immutable.
type ColumnMapping struct {
	Date       string `json:"date"`
	SellerName string `json:"sellerName"`
	AmountSold string `json:"amountSold,omitempty"`
	AmountPaid string `json:"amountPaid,omitempty"`
	Department string `json:"department,omitempty"`
	Procedure  string `json:"procedure,omitempty"`
	ClientName string `json:"clientName,omitempty"`
}

// MappingIncompleteError reports which mandatory canonical fields could not
// be mapped to any header. It is fatal for the batch: processing is blocked
// until a corrected mapping is supplied.
type MappingIncompleteError struct {
	Missing []string
}

func (e *MappingIncompleteError) Error() string {
	return fmt.Sprintf("column mapping incomplete: missing %s", strings.Join(e.Missing, ", "))
}

// ParsedSale is one normalized, typed spreadsheet row. It lives only for
// the duration of a single import.
type ParsedSale struct {
	Line         int       `json:"line"`
	Date         time.Time `json:"date"`
	Department   string    `json:"department,omitempty"`
	Procedure    string    `json:"procedure,omitempty"`
	ClientName   string    `json:"clientName,omitempty"`
	SellerName   string    `json:"sellerName"`
	AmountSold   float64   `json:"amountSold"`
	AmountPaid   float64   `json:"amountPaid"`
	MatchedUserID uuid.UUID `json:"matchedUserId,omitempty"`
	MatchedTeamID uuid.UUID `json:"matchedTeamId,omitempty"`
	ClientID      uuid.UUID `json:"clientId,omitempty"`
	ClientMatched bool      `json:"clientMatched"`
	Status        RowStatus `json:"status"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
}

// PrimaryAmount is the amount used for dedup keys, persistence and the RFV
// ledger: the paid amount when present, otherwise the sold amount.
func (p ParsedSale) PrimaryAmount() float64 {
	if p.AmountPaid > 0 {
		return p.AmountPaid
	}
	return p.AmountSold
}

// RowError describes a row that failed a storage insert. The failed subset
// can be resubmitted independently of the rest of the file.
type RowError struct {
	Line         int        `json:"line"`
	Row          ParsedSale `json:"row"`
	ErrorMessage string     `json:"errorMessage"`
}

// ImportResult summarizes one completed import batch.
type ImportResult struct {
	AuditID    uuid.UUID  `json:"auditId"`
	TotalRows  int        `json:"totalRows"`
	Success    int        `json:"success"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Unmatched  int        `json:"unmatched"`
	ErrorRows  int        `json:"errorRows"`
	FailedRows []RowError `json:"failedRows,omitempty"`
	// Rows retained for manual correction: parse errors and unmatched
	// sellers, in file order.
	ReviewRows []ParsedSale `json:"reviewRows,omitempty"`
}
