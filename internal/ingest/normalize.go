package ingest

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// excelEpoch is the spreadsheet serial-date epoch (day 0 = 1899-12-30,
// which absorbs the historical Lotus leap-year bug).
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

var errInvalidDate = errors.New("invalid date")

// summaryKeywords mark total/subtotal rows that must be discarded before
// normalization.
var summaryKeywords = []string{"total", "soma", "subtotal"}

func containsSummaryKeyword(s string) bool {
	s = strings.ToLower(s)
	for _, kw := range summaryKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// IsSummaryRow reports whether a raw row looks like a total/summary line.
// Such rows are excluded entirely, not even counted as errors.
func IsSummaryRow(row map[string]string, m ColumnMapping) bool {
	client := strings.TrimSpace(row[m.ClientName])
	seller := strings.TrimSpace(row[m.SellerName])
	date := strings.TrimSpace(row[m.Date])

	if containsSummaryKeyword(client) || containsSummaryKeyword(seller) {
		return true
	}
	if date == "" && (client == "" || seller == "") {
		return true
	}
	if containsSummaryKeyword(date) {
		return true
	}
	return false
}

// ParseSheetDate parses a spreadsheet date cell. Numeric values are treated
// as day serials from the standard epoch; strings are split on "-" or "/"
// and read as yyyy-mm-dd when the first segment has four digits, otherwise
// as dd-mm-yyyy.
func ParseSheetDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errInvalidDate
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial <= 0 {
			return time.Time{}, errInvalidDate
		}
		return excelEpoch.AddDate(0, 0, int(serial)), nil
	}

	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '/'
	})
	if len(parts) != 3 {
		return time.Time{}, errInvalidDate
	}

	var yearStr, monthStr, dayStr string
	if len(parts[0]) == 4 {
		yearStr, monthStr, dayStr = parts[0], parts[1], parts[2]
	} else {
		dayStr, monthStr, yearStr = parts[0], parts[1], parts[2]
	}

	year, err1 := strconv.Atoi(yearStr)
	month, err2 := strconv.Atoi(monthStr)
	day, err3 := strconv.Atoi(dayStr)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, errInvalidDate
	}
	if year < 1000 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, errInvalidDate
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (e.g. Feb 31), so round-trips must agree.
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, errInvalidDate
	}
	return t, nil
}

// ParseCurrency parses a currency cell with Brazilian locale support:
// "1.234,56" and "1234,56" both mean 1234.56, while "1234.56" stays as-is.
// Unparsable values normalize to 0.
func ParseCurrency(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "R$", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		// "1.234,56": dot is a thousands separator.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0 && lastDot < 0:
		// "1234,56": comma is the decimal separator.
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// NormalizeRow turns one raw row into a ParsedSale. The second return value
// is false when the row is filtered out entirely (summary/blank rows).
// Parse failures yield a sale with StatusError; anything else leaves Status
// empty for the entity resolver to settle.
func NormalizeRow(row map[string]string, m ColumnMapping, line int) (ParsedSale, bool) {
	if IsSummaryRow(row, m) {
		return ParsedSale{}, false
	}

	sale := ParsedSale{
		Line:       line,
		Department: strings.TrimSpace(row[m.Department]),
		Procedure:  strings.TrimSpace(row[m.Procedure]),
		ClientName: strings.TrimSpace(row[m.ClientName]),
		SellerName: strings.TrimSpace(row[m.SellerName]),
	}

	date, err := ParseSheetDate(row[m.Date])
	if err != nil {
		sale.Status = StatusError
		sale.ErrorMessage = "invalid date"
		return sale, true
	}
	sale.Date = date

	if m.AmountSold != "" {
		sale.AmountSold = ParseCurrency(row[m.AmountSold])
	}
	if m.AmountPaid != "" {
		sale.AmountPaid = ParseCurrency(row[m.AmountPaid])
	}
	if sale.AmountSold == 0 && sale.AmountPaid == 0 {
		sale.Status = StatusError
		sale.ErrorMessage = "zero value"
		return sale, true
	}

	return sale, true
}
