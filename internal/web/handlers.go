package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vendaops/salesync/internal/ingest"
	"github.com/vendaops/salesync/internal/logging"
	"github.com/vendaops/salesync/internal/sheet"
	"github.com/vendaops/salesync/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleImport runs one spreadsheet through the full pipeline and returns
// the batch result with its rollups.
//
// Multipart fields:
//
//	file        the spreadsheet (xlsx or csv), required
//	ledger      "sold" (default) or "executed"
//	sheet       workbook sheet name, defaults to the first sheet
//	mapping     optional explicit column mapping as JSON
//	uploaded_by free-form uploader identity for the audit trail
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseImportForm(w, r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	outcome, err := s.importer.Run(ctx, *req)
	if err != nil {
		status := http.StatusInternalServerError
		var incomplete *ingest.MappingIncompleteError
		if errors.As(err, &incomplete) {
			status = http.StatusUnprocessableEntity
		}
		respondError(w, r, err, status)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// handleImportPreview resolves the column mapping for a file without
// touching storage, so callers can confirm or correct it before importing.
func (s *Server) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseImportForm(w, r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	mapping, err := s.importer.PreviewMapping(req.Table.Headers)
	if err != nil {
		respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mapping": mapping,
		"headers": req.Table.Headers,
		"rows":    len(req.Table.Rows),
	})
}

func (s *Server) parseImportForm(w http.ResponseWriter, r *http.Request) (*ingest.ImportRequest, error) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		return nil, err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("no file provided: %w", err)
	}
	defer file.Close()

	req := &ingest.ImportRequest{
		FileName:   header.Filename,
		UploadedBy: r.FormValue("uploaded_by"),
		Ledger:     store.Ledger(r.FormValue("ledger")),
	}
	if mappingJSON := r.FormValue("mapping"); mappingJSON != "" {
		var m ingest.ColumnMapping
		if err := json.Unmarshal([]byte(mappingJSON), &m); err != nil {
			return nil, fmt.Errorf("invalid mapping format: %w", err)
		}
		req.Mapping = &m
	}

	logger := logging.FromContext(r.Context())
	logger.Info("import received", "file", header.Filename, "size", header.Size)

	table, err := sheet.Read(header.Filename, file, r.FormValue("sheet"))
	if err != nil {
		return nil, err
	}
	req.Table = table
	return req, nil
}

// handleListRecords returns reconciled ledger records, optionally filtered.
//
// Query params: ledger, user_id, team_id, from, to (dates as yyyy-mm-dd).
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	var f store.RecordFilter
	q := r.URL.Query()

	if v := q.Get("ledger"); v != "" {
		f.Ledger = store.Ledger(v)
		if !f.Ledger.Valid() {
			respondError(w, r, fmt.Errorf("unknown ledger %q", v), http.StatusBadRequest)
			return
		}
	}
	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, r, err, http.StatusBadRequest)
			return
		}
		f.UserID = id
	}
	if v := q.Get("team_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, r, err, http.StatusBadRequest)
			return
		}
		f.TeamID = id
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, r, err, http.StatusBadRequest)
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, r, err, http.StatusBadRequest)
			return
		}
		f.To = t
	}

	records, err := s.store.ListRecords(r.Context(), f)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// handleListCustomers returns the RFV customer base. With ?national_id= it
// returns the single matching profile instead.
func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	if nationalID := r.URL.Query().Get("national_id"); nationalID != "" {
		c, err := s.store.FindCustomerByNationalID(r.Context(), nationalID)
		if err != nil {
			respondError(w, r, err, lookupStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, c)
		return
	}

	customers, err := s.store.ListCustomers(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	if segment := r.URL.Query().Get("segment"); segment != "" {
		filtered := customers[:0]
		for _, c := range customers {
			if c.Segment == segment {
				filtered = append(filtered, c)
			}
		}
		customers = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers, "count": len(customers)})
}

func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	c, err := s.store.FindCustomerByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err, lookupStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleRescore recomputes scores and segments for the whole customer base
// without ingesting new purchases.
func (s *Server) handleRescore(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Rescore(r.Context()); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rescored"})
}

// handleListAuditLogs returns recent import audit entries, newest first.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, r, fmt.Errorf("invalid limit %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}

	logs, err := s.store.ListAuditLogs(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"auditLogs": logs, "count": len(logs)})
}

func lookupStatus(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
