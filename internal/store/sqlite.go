package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/eis-ingest/internal/model"
)

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
	q  sqlQuerier
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. The pool holds a single connection so pragmas apply to every call.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS region (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS classification_code (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS customer (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	tax_id         TEXT NOT NULL UNIQUE,
	name           TEXT,
	legal_address  TEXT,
	actual_address TEXT,
	contact        TEXT,
	contact_phone  TEXT,
	contact_email  TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_customer_contact ON customer(contact);

CREATE TABLE IF NOT EXISTS trading_platform (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	url        TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS contract (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	family                 TEXT NOT NULL,
	number                 TEXT,
	notice_number          TEXT,
	subject                TEXT,
	price                  REAL,
	currency               TEXT,
	published_at           TEXT,
	ends_at                TEXT,
	status                 TEXT,
	attributes             TEXT,
	source_file            TEXT NOT NULL,
	customer_id            INTEGER NOT NULL REFERENCES customer(id),
	trading_platform_id    INTEGER NOT NULL REFERENCES trading_platform(id),
	region_id              INTEGER REFERENCES region(id),
	classification_code_id INTEGER NOT NULL REFERENCES classification_code(id),
	created_at             DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_contract_customer ON contract(customer_id);

CREATE TABLE IF NOT EXISTS document_link (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	contract_id INTEGER NOT NULL REFERENCES contract(id) ON DELETE CASCADE,
	file_name   TEXT NOT NULL,
	url         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_document_link_contract ON document_link(contract_id);

CREATE TABLE IF NOT EXISTS processed_file (
	file_name    TEXT PRIMARY KEY,
	processed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS processed_date (
	date          TEXT PRIMARY KEY,
	tuples        INTEGER NOT NULL DEFAULT 0,
	failed_tuples INTEGER NOT NULL DEFAULT 0,
	archives      INTEGER NOT NULL DEFAULT 0,
	files         INTEGER NOT NULL DEFAULT 0,
	completed_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn against a store bound to one transaction. Calls nested in
// an open transaction join it.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(q Querier) error) error {
	if _, nested := s.q.(*sql.Tx); nested {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&SQLiteStore{db: s.db, q: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func (s *SQLiteStore) exists(ctx context.Context, query string, arg any) (bool, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, query, arg).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) IsFileProcessed(ctx context.Context, fileName string) (bool, error) {
	ok, err := s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM processed_file WHERE file_name = ?)`, fileName)
	return ok, eris.Wrapf(err, "sqlite: check processed file %s", fileName)
}

func (s *SQLiteStore) RecordProcessedFile(ctx context.Context, fileName string) error {
	_, err := s.q.ExecContext(ctx, `INSERT OR IGNORE INTO processed_file (file_name) VALUES (?)`, fileName)
	return eris.Wrapf(err, "sqlite: record processed file %s", fileName)
}

func (s *SQLiteStore) IsDateProcessed(ctx context.Context, date time.Time) (bool, error) {
	day := date.Format(DateLayout)
	ok, err := s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM processed_date WHERE date = ?)`, day)
	return ok, eris.Wrapf(err, "sqlite: check processed date %s", day)
}

func (s *SQLiteStore) RecordProcessedDate(ctx context.Context, date time.Time, sum model.SweepSummary) error {
	day := date.Format(DateLayout)
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO processed_date (date, tuples, failed_tuples, archives, files) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (date) DO UPDATE SET tuples = excluded.tuples, failed_tuples = excluded.failed_tuples,
		   archives = excluded.archives, files = excluded.files, completed_at = datetime('now')`,
		day, sum.Tuples, sum.FailedTuples, sum.Archives, sum.Files,
	)
	return eris.Wrapf(err, "sqlite: record processed date %s", day)
}

func (s *SQLiteStore) LastProcessedDate(ctx context.Context) (*time.Time, error) {
	var last *string
	if err := s.q.QueryRowContext(ctx, `SELECT max(date) FROM processed_date`).Scan(&last); err != nil {
		return nil, eris.Wrap(err, "sqlite: last processed date")
	}
	return parseDay(last)
}

func parseDay(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, *s)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse date %q", *s)
	}
	return &t, nil
}

func (s *SQLiteStore) Regions(ctx context.Context) ([]model.Region, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, code, name FROM region ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list regions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Region
	for rows.Next() {
		var r model.Region
		if err := rows.Scan(&r.ID, &r.Code, &r.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan region")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate regions")
}

func (s *SQLiteStore) lookupID(ctx context.Context, query, code, what string) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, query, code).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, eris.Wrapf(ErrNotFound, "%s %s", what, code)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: lookup %s %s", what, code)
	}
	return id, nil
}

func (s *SQLiteStore) RegionID(ctx context.Context, code string) (int64, error) {
	return s.lookupID(ctx, `SELECT id FROM region WHERE code = ?`, code, "region")
}

func (s *SQLiteStore) ClassificationCodeID(ctx context.Context, code string) (int64, error) {
	return s.lookupID(ctx, `SELECT id FROM classification_code WHERE code = ?`, code, "classification code")
}

func (s *SQLiteStore) upsertCodes(ctx context.Context, table string, pairs [][2]string) (int64, error) {
	if len(pairs) == 0 {
		return 0, nil
	}
	stmt := `INSERT INTO ` + table + ` (code, name) VALUES (?, ?)
		ON CONFLICT (code) DO UPDATE SET name = excluded.name`

	var n int64
	err := s.WithTx(ctx, func(q Querier) error {
		tx := q.(*SQLiteStore).q
		for _, p := range pairs {
			res, err := tx.ExecContext(ctx, stmt, p[0], p[1])
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert %s %s", table, p[0])
			}
			k, _ := res.RowsAffected()
			n += k
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) UpsertRegions(ctx context.Context, regions []model.Region) (int64, error) {
	pairs := make([][2]string, len(regions))
	for i, r := range regions {
		pairs[i] = [2]string{r.Code, r.Name}
	}
	return s.upsertCodes(ctx, "region", pairs)
}

func (s *SQLiteStore) UpsertClassificationCodes(ctx context.Context, codes []model.ClassificationCode) (int64, error) {
	pairs := make([][2]string, len(codes))
	for i, c := range codes {
		pairs[i] = [2]string{c.Code, c.Name}
	}
	return s.upsertCodes(ctx, "classification_code", pairs)
}

func (s *SQLiteStore) FindCustomerByTaxID(ctx context.Context, taxID string) (*model.Customer, error) {
	var c model.Customer
	err := s.q.QueryRowContext(ctx,
		`SELECT id, tax_id, name, legal_address, actual_address, contact, contact_phone, contact_email
		 FROM customer WHERE tax_id = ?`, taxID,
	).Scan(&c.ID, &c.TaxID, &c.Name, &c.LegalAddress, &c.ActualAddress, &c.Contact, &c.ContactPhone, &c.ContactEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find customer %s", taxID)
	}
	return &c, nil
}

func (s *SQLiteStore) ContactExists(ctx context.Context, contact string) (bool, error) {
	// contact holds "; "-joined history; match whole elements only.
	ok, err := s.exists(ctx,
		`SELECT EXISTS (SELECT 1 FROM customer WHERE instr('; ' || contact || '; ', '; ' || ? || '; ') > 0)`, contact)
	return ok, eris.Wrap(err, "sqlite: check contact")
}

func (s *SQLiteStore) InsertCustomer(ctx context.Context, c model.Customer) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO customer (tax_id, name, legal_address, actual_address, contact, contact_phone, contact_email)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		c.TaxID, c.Name, c.LegalAddress, c.ActualAddress, c.Contact, c.ContactPhone, c.ContactEmail,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert customer %s", c.TaxID)
	}
	return id, nil
}

func (s *SQLiteStore) UpdateCustomer(ctx context.Context, id int64, patch model.CustomerPatch) error {
	cols, args := customerColumns(patch)
	if len(cols) == 0 {
		return nil
	}
	set := make([]string, len(cols))
	for i, c := range cols {
		set[i] = c + " = ?"
	}
	args = append(args, id)
	res, err := s.q.ExecContext(ctx,
		`UPDATE customer SET `+strings.Join(set, ", ")+`, updated_at = datetime('now') WHERE id = ?`, args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update customer %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("sqlite: customer not found: %d", id)
	}
	return nil
}

func (s *SQLiteStore) FindPlatformByName(ctx context.Context, name string) (*model.TradingPlatform, error) {
	var p model.TradingPlatform
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, url FROM trading_platform WHERE name = ?`, name,
	).Scan(&p.ID, &p.Name, &p.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find platform %s", name)
	}
	return &p, nil
}

func (s *SQLiteStore) InsertPlatform(ctx context.Context, p model.TradingPlatform) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO trading_platform (name, url) VALUES (?, ?) RETURNING id`, p.Name, p.URL,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert platform %s", p.Name)
	}
	return id, nil
}

func timeText(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func (s *SQLiteStore) InsertContract(ctx context.Context, c model.Contract) (int64, error) {
	var attrs *string
	if len(c.Attributes) > 0 {
		b, err := json.Marshal(c.Attributes)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal contract attributes")
		}
		v := string(b)
		attrs = &v
	}

	var id int64
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO contract (family, number, notice_number, subject, price, currency, published_at, ends_at,
		   status, attributes, source_file, customer_id, trading_platform_id, region_id, classification_code_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		c.Family.String(), c.Number, c.NoticeNumber, c.Subject, c.Price, c.Currency,
		timeText(c.PublishedAt), timeText(c.EndsAt), c.Status, attrs, c.SourceFile,
		c.CustomerID, c.TradingPlatformID, c.RegionID, c.ClassificationCodeID,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert contract from %s", c.SourceFile)
	}
	return id, nil
}

func (s *SQLiteStore) InsertDocumentLinks(ctx context.Context, links []model.DocumentLink) (int64, error) {
	var n int64
	for _, l := range links {
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO document_link (contract_id, file_name, url) VALUES (?, ?, ?)`,
			l.ContractID, l.FileName, l.URL,
		); err != nil {
			return n, eris.Wrapf(err, "sqlite: insert document link %s", l.FileName)
		}
		n++
	}
	return n, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.LedgerStats, error) {
	var st model.LedgerStats
	var last *string
	err := s.q.QueryRowContext(ctx, `SELECT
		(SELECT count(*) FROM processed_file),
		(SELECT count(*) FROM processed_date),
		(SELECT max(date) FROM processed_date),
		(SELECT count(*) FROM customer),
		(SELECT count(*) FROM trading_platform),
		(SELECT count(*) FROM contract),
		(SELECT count(*) FROM document_link)`,
	).Scan(&st.ProcessedFiles, &st.ProcessedDates, &last, &st.Customers,
		&st.TradingPlatforms, &st.Contracts, &st.DocumentLinks)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	if st.LastProcessedDate, err = parseDay(last); err != nil {
		return nil, err
	}
	return &st, nil
}
