package ingest

import (
	"strings"
)

// MappingKeywords configures the heuristic column detection. Each slice is
// an ordered list of substring predicates evaluated against lowercased,
// trimmed header text. The sets are plain data so deployments with unusual
// spreadsheet vocabularies can override them.
type MappingKeywords struct {
	Date       []string
	Seller     []string
	AmountSold []string
	AmountPaid []string
	// AmountGeneric catches loose amount headers ("valor"). A generic hit
	// provisionally fills the sold amount and is always overridden by a
	// later specific sold/paid hit.
	AmountGeneric []string
	Department    []string
	Procedure     []string
	Client        []string
}

// DefaultMappingKeywords returns the Portuguese-first keyword sets used by
// production imports. English fallbacks cover exported SaaS reports.
func DefaultMappingKeywords() MappingKeywords {
	return MappingKeywords{
		Date:          []string{"data", "date", "dia"},
		Seller:        []string{"vendedor", "consultor", "profissional", "seller"},
		AmountSold:    []string{"valor vendido", "vendido", "amount sold"},
		AmountPaid:    []string{"valor pago", "pago", "amount paid"},
		AmountGeneric: []string{"valor", "amount", "total"},
		Department:    []string{"departamento", "setor", "department"},
		Procedure:     []string{"procedimento", "serviço", "servico", "procedure"},
		Client:        []string{"cliente", "paciente", "client"},
	}
}

func matchAny(header string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(header, kw) {
			return true
		}
	}
	return false
}

// ResolveMapping infers a ColumnMapping from the distinct headers of a
// sheet. Headers are evaluated in file order; the first header matching a
// field's predicates wins, and later matches for an already-assigned field
// are ignored. The one exception is the amount pair: a specific sold/paid
// header always replaces an earlier generic "valor" capture.
//
// Returns *MappingIncompleteError when date, seller, or both amount fields
// remain unresolved.
func ResolveMapping(headers []string, kw MappingKeywords) (ColumnMapping, error) {
	var m ColumnMapping
	soldGeneric := false // AmountSold currently holds a generic capture

	for _, raw := range headers {
		h := strings.ToLower(strings.TrimSpace(raw))
		if h == "" {
			continue
		}

		switch {
		case matchAny(h, kw.AmountSold):
			if m.AmountSold == "" || soldGeneric {
				m.AmountSold = raw
				soldGeneric = false
			}
			continue
		case matchAny(h, kw.AmountPaid):
			if m.AmountPaid == "" {
				m.AmountPaid = raw
			}
			continue
		case matchAny(h, kw.AmountGeneric):
			if m.AmountSold == "" {
				m.AmountSold = raw
				soldGeneric = true
			}
			continue
		}

		if m.Date == "" && matchAny(h, kw.Date) {
			m.Date = raw
			continue
		}
		if m.SellerName == "" && matchAny(h, kw.Seller) {
			m.SellerName = raw
			continue
		}
		if m.Department == "" && matchAny(h, kw.Department) {
			m.Department = raw
			continue
		}
		if m.Procedure == "" && matchAny(h, kw.Procedure) {
			m.Procedure = raw
			continue
		}
		if m.ClientName == "" && matchAny(h, kw.Client) {
			m.ClientName = raw
			continue
		}
	}

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
