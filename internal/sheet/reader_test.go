package sheet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestReadCSV(t *testing.T) {
	in := "Data,Vendedor,Valor\n15/01/2024,Ana,100\n16/01/2024,Bruno,200\n"

	table, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}

	wantHeaders := []string{"Data", "Vendedor", "Valor"}
	if len(table.Headers) != len(wantHeaders) {
		t.Fatalf("Headers = %v, want %v", table.Headers, wantHeaders)
	}
	for i, h := range wantHeaders {
		if table.Headers[i] != h {
			t.Errorf("Headers[%d] = %q, want %q", i, table.Headers[i], h)
		}
	}
	if len(table.Rows) != 2 {
		t.Fatalf("Rows length = %d, want 2", len(table.Rows))
	}
	if table.Rows[0]["Vendedor"] != "Ana" || table.Rows[1]["Valor"] != "200" {
		t.Errorf("unexpected rows: %v", table.Rows)
	}
	if table.FirstDataLine != 2 {
		t.Errorf("FirstDataLine = %d, want 2", table.FirstDataLine)
	}
}

func TestReadCSV_HeaderAfterBanner(t *testing.T) {
	// Exports often start with a title banner and blank padding.
	in := "Relatório de Vendas\n\nData,Vendedor,Valor\n15/01/2024,Ana,100\n"

	table, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if table.Headers[0] != "Data" {
		t.Errorf("Headers[0] = %q, want Data", table.Headers[0])
	}
	if table.FirstDataLine != 4 {
		t.Errorf("FirstDataLine = %d, want 4", table.FirstDataLine)
	}
	if len(table.Rows) != 1 {
		t.Errorf("Rows length = %d, want 1", len(table.Rows))
	}
}

func TestReadCSV_BOM(t *testing.T) {
	in := "\xEF\xBB\xBFData,Vendedor\n15/01/2024,Ana\n"

	table, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if table.Headers[0] != "Data" {
		t.Errorf("BOM must be stripped from the first header, got %q", table.Headers[0])
	}
}

func TestReadCSV_RaggedRows(t *testing.T) {
	in := "Data,Vendedor,Valor\n15/01/2024,Ana\n16/01/2024,Bruno,200,extra\n"

	table, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("Rows length = %d, want 2", len(table.Rows))
	}
	if v, ok := table.Rows[0]["Valor"]; ok && v != "" {
		t.Errorf("short row should have no value for missing column, got %q", v)
	}
	if table.Rows[1]["Valor"] != "200" {
		t.Errorf("long row Valor = %q, want 200", table.Rows[1]["Valor"])
	}
}

func TestReadCSV_BlankRowKeepsLineAlignment(t *testing.T) {
	in := "Data,Vendedor\n15/01/2024,Ana\n,\n17/01/2024,Bruno\n"

	table, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("Rows length = %d, want 3 (blank row kept)", len(table.Rows))
	}
	if len(table.Rows[1]) != 0 {
		t.Errorf("blank row should be empty, got %v", table.Rows[1])
	}
	if table.Rows[2]["Vendedor"] != "Bruno" {
		t.Errorf("row after blank = %v", table.Rows[2])
	}
}

func TestReadCSV_NoHeader(t *testing.T) {
	in := "so-um-titulo\n\n\n"

	if _, err := ReadCSV(strings.NewReader(in)); err == nil {
		t.Fatal("ReadCSV() expected error when no header row exists")
	}
}

func TestReadCSV_InvalidUTF8(t *testing.T) {
	// Latin-1 bytes must not break parsing.
	in := "Data,Cliente\n15/01/2024,Jos\xe9\n"

	table, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("Rows length = %d, want 1", len(table.Rows))
	}
}

func workbookBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheetName := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadWorkbook(t *testing.T) {
	data := workbookBytes(t, [][]any{
		{"Data", "Vendedor", "Valor"},
		{"15/01/2024", "Ana", "1.000,00"},
		{"16/01/2024", "Bruno", "200,00"},
	})

	table, err := ReadWorkbook(bytes.NewReader(data), "")
	if err != nil {
		t.Fatalf("ReadWorkbook() error = %v", err)
	}
	if table.SheetName == "" {
		t.Error("SheetName should default to the first sheet")
	}
	if len(table.Rows) != 2 {
		t.Fatalf("Rows length = %d, want 2", len(table.Rows))
	}
	if table.Rows[0]["Valor"] != "1.000,00" {
		t.Errorf("Valor = %q, want raw cell text", table.Rows[0]["Valor"])
	}
}

func TestReadWorkbook_UnknownSheet(t *testing.T) {
	data := workbookBytes(t, [][]any{{"Data", "Valor"}})

	if _, err := ReadWorkbook(bytes.NewReader(data), "Inexistente"); err == nil {
		t.Fatal("ReadWorkbook() expected error for unknown sheet")
	}
}

func TestRead_DispatchByExtension(t *testing.T) {
	xlsx := workbookBytes(t, [][]any{
		{"Data", "Vendedor"},
		{"15/01/2024", "Ana"},
	})

	table, err := Read("vendas.XLSX", bytes.NewReader(xlsx), "")
	if err != nil {
		t.Fatalf("Read(xlsx) error = %v", err)
	}
	if len(table.Rows) != 1 {
		t.Errorf("xlsx Rows length = %d, want 1", len(table.Rows))
	}

	table, err = Read("vendas.csv", strings.NewReader("Data,Vendedor\n15/01/2024,Ana\n"), "")
	if err != nil {
		t.Fatalf("Read(csv) error = %v", err)
	}
	if len(table.Rows) != 1 {
		t.Errorf("csv Rows length = %d, want 1", len(table.Rows))
	}
}
