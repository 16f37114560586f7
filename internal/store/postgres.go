package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the subset of pgx operations the store needs.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresStore is the production Store backed by PostgreSQL.
//
// Ledgers live in one financial_records table discriminated by a ledger
// column; the composite dedup key is enforced by a unique index on
// (ledger, date, attributed_user_id, amount_cents).
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a PostgresStore on top of a pool or transaction.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByCompositeKey(ctx context.Context, ledger Ledger, date time.Time, userID uuid.UUID, amountCents int64) (*FinancialRecord, error) {
	const q = `
		SELECT id, date, amount, department, attributed_user_id, team_id, notes, created_at
		FROM financial_records
		WHERE ledger = $1 AND date = $2 AND attributed_user_id = $3 AND amount_cents = $4`

	row := s.db.QueryRow(ctx, q, string(ledger), toPgDate(date), userID, amountCents)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by composite key: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) InsertRecord(ctx context.Context, ledger Ledger, rec FinancialRecord) error {
	const q = `
		INSERT INTO financial_records
			(id, ledger, date, amount, amount_cents, department, attributed_user_id, team_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, q,
		rec.ID,
		string(ledger),
		toPgDate(rec.Date),
		rec.Amount,
		AmountCents(rec.Amount),
		toPgText(rec.Department),
		rec.AttributedUserID,
		toPgUUID(rec.TeamID),
		toPgText(rec.Notes),
	)
	if err != nil {
		return fmt.Errorf("insert financial record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, f RecordFilter) ([]FinancialRecord, error) {
	q := `
		SELECT id, date, amount, department, attributed_user_id, team_id, notes, created_at
		FROM financial_records
		WHERE 1=1`
	args := []interface{}{}
	n := 0

	add := func(clause string, v interface{}) {
		n++
		q += fmt.Sprintf(" AND %s = $%d", clause, n)
		args = append(args, v)
	}
	if f.Ledger != "" {
		add("ledger", string(f.Ledger))
	}
	if f.UserID != uuid.Nil {
		add("attributed_user_id", f.UserID)
	}
	if f.TeamID != uuid.Nil {
		add("team_id", f.TeamID)
	}
	if !f.From.IsZero() {
		n++
		q += fmt.Sprintf(" AND date >= $%d", n)
		args = append(args, toPgDate(f.From))
	}
	if !f.To.IsZero() {
		n++
		q += fmt.Sprintf(" AND date <= $%d", n)
		args = append(args, toPgDate(f.To))
	}
	q += " ORDER BY date, created_at"

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []FinancialRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

const customerColumns = `
	id, name, national_id, record_number,
	first_purchase_date, last_purchase_date,
	total_purchases, total_value, average_ticket,
	recency_score, frequency_score, value_score,
	segment, days_since_last_purchase, updated_at`

func (s *PostgresStore) ListCustomers(ctx context.Context) ([]CustomerProfile, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+customerColumns+` FROM customer_profiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []CustomerProfile
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpsertCustomer(ctx context.Context, c CustomerProfile) error {
	const q = `
		INSERT INTO customer_profiles (` + customerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			national_id = EXCLUDED.national_id,
			record_number = EXCLUDED.record_number,
			first_purchase_date = EXCLUDED.first_purchase_date,
			last_purchase_date = EXCLUDED.last_purchase_date,
			total_purchases = EXCLUDED.total_purchases,
			total_value = EXCLUDED.total_value,
			average_ticket = EXCLUDED.average_ticket,
			recency_score = EXCLUDED.recency_score,
			frequency_score = EXCLUDED.frequency_score,
			value_score = EXCLUDED.value_score,
			segment = EXCLUDED.segment,
			days_since_last_purchase = EXCLUDED.days_since_last_purchase,
			updated_at = now()`

	_, err := s.db.Exec(ctx, q,
		c.ID,
		c.Name,
		toPgText(c.NationalID),
		toPgText(c.RecordNumber),
		toPgDate(c.FirstPurchaseDate),
		toPgDate(c.LastPurchaseDate),
		c.TotalPurchases,
		c.TotalValue,
		c.AverageTicket,
		c.RecencyScore,
		c.FrequencyScore,
		c.ValueScore,
		c.Segment,
		c.DaysSinceLastPurchase,
	)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindCustomerByID(ctx context.Context, id uuid.UUID) (*CustomerProfile, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customer_profiles WHERE id = $1`, id)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) FindCustomerByNationalID(ctx context.Context, nationalID string) (*CustomerProfile, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customer_profiles WHERE national_id = $1`, nationalID)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find customer by national id: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) InsertAuditLog(ctx context.Context, log UploadAuditLog) error {
	const q = `
		INSERT INTO upload_audit_logs
			(id, file_name, sheet_name, uploaded_by, total_rows, success, failed,
			 skipped, unmatched, error_rows, revenue_sold, revenue_paid,
			 date_from, date_to, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())`

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, q,
		log.ID,
		log.FileName,
		toPgText(log.SheetName),
		toPgText(log.UploadedBy),
		log.TotalRows,
		log.Success,
		log.Failed,
		log.Skipped,
		log.Unmatched,
		log.ErrorRows,
		log.RevenueSold,
		log.RevenuePaid,
		toPgDate(log.DateFrom),
		toPgDate(log.DateTo),
		log.Status,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditLogs(ctx context.Context, limit int) ([]UploadAuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, file_name, sheet_name, uploaded_by, total_rows, success, failed,
		       skipped, unmatched, error_rows, revenue_sold, revenue_paid,
		       date_from, date_to, status, created_at
		FROM upload_audit_logs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []UploadAuditLog
	for rows.Next() {
		var (
			log       UploadAuditLog
			sheet     pgtype.Text
			uploader  pgtype.Text
			dateFrom  pgtype.Date
			dateTo    pgtype.Date
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(
			&log.ID, &log.FileName, &sheet, &uploader,
			&log.TotalRows, &log.Success, &log.Failed,
			&log.Skipped, &log.Unmatched, &log.ErrorRows,
			&log.RevenueSold, &log.RevenuePaid,
			&dateFrom, &dateTo, &log.Status, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		log.SheetName = sheet.String
		log.UploadedBy = uploader.String
		log.DateFrom = dateFrom.Time
		log.DateTo = dateTo.Time
		log.CreatedAt = createdAt.Time
		out = append(out, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, full_name, first_name, team_id FROM users ORDER BY full_name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var teamID pgtype.UUID
		if err := rows.Scan(&u.ID, &u.FullName, &u.FirstName, &teamID); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if teamID.Valid {
			u.TeamID = uuid.UUID(teamID.Bytes)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListSellerAliases(ctx context.Context) ([]SellerAlias, error) {
	rows, err := s.db.Query(ctx,
		`SELECT alias, user_id FROM seller_aliases ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("list seller aliases: %w", err)
	}
	defer rows.Close()

	var out []SellerAlias
	for rows.Next() {
		var a SellerAlias
		if err := rows.Scan(&a.Alias, &a.UserID); err != nil {
			return nil, fmt.Errorf("scan seller alias: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list seller aliases: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListClientIdentities(ctx context.Context) ([]ClientIdentity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, national_id, record_number FROM client_identities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list client identities: %w", err)
	}
	defer rows.Close()

	var out []ClientIdentity
	for rows.Next() {
		var c ClientIdentity
		var nationalID, recordNumber pgtype.Text
		if err := rows.Scan(&c.ID, &c.Name, &nationalID, &recordNumber); err != nil {
			return nil, fmt.Errorf("scan client identity: %w", err)
		}
		c.NationalID = nationalID.String
		c.RecordNumber = recordNumber.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list client identities: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*FinancialRecord, error) {
	var (
		rec        FinancialRecord
		date       pgtype.Date
		department pgtype.Text
		teamID     pgtype.UUID
		notes      pgtype.Text
		createdAt  pgtype.Timestamptz
	)
	if err := row.Scan(&rec.ID, &date, &rec.Amount, &department,
		&rec.AttributedUserID, &teamID, &notes, &createdAt); err != nil {
		return nil, err
	}
	rec.Date = date.Time
	rec.Department = department.String
	if teamID.Valid {
		rec.TeamID = uuid.UUID(teamID.Bytes)
	}
	rec.Notes = notes.String
	rec.CreatedAt = createdAt.Time
	return &rec, nil
}

func scanCustomer(row pgx.Row) (*CustomerProfile, error) {
	var (
		c            CustomerProfile
		nationalID   pgtype.Text
		recordNumber pgtype.Text
		firstDate    pgtype.Date
		lastDate     pgtype.Date
		updatedAt    pgtype.Timestamptz
	)
	if err := row.Scan(&c.ID, &c.Name, &nationalID, &recordNumber,
		&firstDate, &lastDate,
		&c.TotalPurchases, &c.TotalValue, &c.AverageTicket,
		&c.RecencyScore, &c.FrequencyScore, &c.ValueScore,
		&c.Segment, &c.DaysSinceLastPurchase, &updatedAt); err != nil {
		return nil, err
	}
	c.NationalID = nationalID.String
	c.RecordNumber = recordNumber.String
	c.FirstPurchaseDate = firstDate.Time
	c.LastPurchaseDate = lastDate.Time
	c.UpdatedAt = updatedAt.Time
	return &c, nil
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: t, Valid: true}
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}
