package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/eis-ingest/internal/db"
	"github.com/sells-group/eis-ingest/internal/model"
)

// PostgresStore implements Store on pgx. Inside WithTx the pool is the
// transaction itself.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close is a no-op.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// WithTx runs fn against a store bound to one transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&PostgresStore{pool: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit tx")
	}
	return nil
}

func (s *PostgresStore) IsFileProcessed(ctx context.Context, fileName string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM eis.processed_file WHERE file_name = $1)`, fileName,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: check processed file %s", fileName)
	}
	return exists, nil
}

func (s *PostgresStore) RecordProcessedFile(ctx context.Context, fileName string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO eis.processed_file (file_name) VALUES ($1) ON CONFLICT (file_name) DO NOTHING`, fileName,
	)
	return eris.Wrapf(err, "postgres: record processed file %s", fileName)
}

func (s *PostgresStore) IsDateProcessed(ctx context.Context, date time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM eis.processed_date WHERE date = $1)`, dateOnly(date),
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: check processed date %s", date.Format(DateLayout))
	}
	return exists, nil
}

func (s *PostgresStore) RecordProcessedDate(ctx context.Context, date time.Time, sum model.SweepSummary) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO eis.processed_date (date, tuples, failed_tuples, archives, files)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (date) DO UPDATE SET tuples = EXCLUDED.tuples, failed_tuples = EXCLUDED.failed_tuples,
		   archives = EXCLUDED.archives, files = EXCLUDED.files, completed_at = now()`,
		dateOnly(date), sum.Tuples, sum.FailedTuples, sum.Archives, sum.Files,
	)
	return eris.Wrapf(err, "postgres: record processed date %s", date.Format(DateLayout))
}

func (s *PostgresStore) LastProcessedDate(ctx context.Context) (*time.Time, error) {
	var last *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT max(date) FROM eis.processed_date`).Scan(&last); err != nil {
		return nil, eris.Wrap(err, "postgres: last processed date")
	}
	if last != nil {
		d := dateOnly(*last)
		last = &d
	}
	return last, nil
}

func (s *PostgresStore) Regions(ctx context.Context) ([]model.Region, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, code, name FROM eis.region ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list regions")
	}
	defer rows.Close()

	var out []model.Region
	for rows.Next() {
		var r model.Region
		if err := rows.Scan(&r.ID, &r.Code, &r.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan region")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate regions")
}

func (s *PostgresStore) lookupID(ctx context.Context, query, code, what string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, query, code).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, eris.Wrapf(ErrNotFound, "%s %s", what, code)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: lookup %s %s", what, code)
	}
	return id, nil
}

func (s *PostgresStore) RegionID(ctx context.Context, code string) (int64, error) {
	return s.lookupID(ctx, `SELECT id FROM eis.region WHERE code = $1`, code, "region")
}

func (s *PostgresStore) ClassificationCodeID(ctx context.Context, code string) (int64, error) {
	return s.lookupID(ctx, `SELECT id FROM eis.classification_code WHERE code = $1`, code, "classification code")
}

func (s *PostgresStore) UpsertRegions(ctx context.Context, regions []model.Region) (int64, error) {
	rows := make([][]any, len(regions))
	for i, r := range regions {
		rows[i] = []any{r.Code, r.Name}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "eis.region",
		Columns:      []string{"code", "name"},
		ConflictKeys: []string{"code"},
	}, rows)
}

func (s *PostgresStore) UpsertClassificationCodes(ctx context.Context, codes []model.ClassificationCode) (int64, error) {
	rows := make([][]any, len(codes))
	for i, c := range codes {
		rows[i] = []any{c.Code, c.Name}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "eis.classification_code",
		Columns:      []string{"code", "name"},
		ConflictKeys: []string{"code"},
	}, rows)
}

func (s *PostgresStore) FindCustomerByTaxID(ctx context.Context, taxID string) (*model.Customer, error) {
	var c model.Customer
	err := s.pool.QueryRow(ctx,
		`SELECT id, tax_id, name, legal_address, actual_address, contact, contact_phone, contact_email
		 FROM eis.customer WHERE tax_id = $1`, taxID,
	).Scan(&c.ID, &c.TaxID, &c.Name, &c.LegalAddress, &c.ActualAddress, &c.Contact, &c.ContactPhone, &c.ContactEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find customer %s", taxID)
	}
	return &c, nil
}

func (s *PostgresStore) ContactExists(ctx context.Context, contact string) (bool, error) {
	// contact holds "; "-joined history; match whole elements only.
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM eis.customer WHERE strpos('; ' || contact || '; ', '; ' || $1 || '; ') > 0)`, contact,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: check contact")
	}
	return exists, nil
}

func (s *PostgresStore) InsertCustomer(ctx context.Context, c model.Customer) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO eis.customer (tax_id, name, legal_address, actual_address, contact, contact_phone, contact_email)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		c.TaxID, c.Name, c.LegalAddress, c.ActualAddress, c.Contact, c.ContactPhone, c.ContactEmail,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert customer %s", c.TaxID)
	}
	return id, nil
}

func (s *PostgresStore) UpdateCustomer(ctx context.Context, id int64, patch model.CustomerPatch) error {
	cols, args := customerColumns(patch)
	if len(cols) == 0 {
		return nil
	}
	set := make([]string, len(cols))
	for i, c := range cols {
		set[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	args = append(args, id)
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE eis.customer SET %s, updated_at = now() WHERE id = $%d`, strings.Join(set, ", "), len(args)),
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update customer %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: customer not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) FindPlatformByName(ctx context.Context, name string) (*model.TradingPlatform, error) {
	var p model.TradingPlatform
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, url FROM eis.trading_platform WHERE name = $1`, name,
	).Scan(&p.ID, &p.Name, &p.URL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find platform %s", name)
	}
	return &p, nil
}

func (s *PostgresStore) InsertPlatform(ctx context.Context, p model.TradingPlatform) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO eis.trading_platform (name, url) VALUES ($1, $2) RETURNING id`, p.Name, p.URL,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert platform %s", p.Name)
	}
	return id, nil
}

func (s *PostgresStore) InsertContract(ctx context.Context, c model.Contract) (int64, error) {
	var attrs []byte
	if len(c.Attributes) > 0 {
		var err error
		if attrs, err = json.Marshal(c.Attributes); err != nil {
			return 0, eris.Wrap(err, "postgres: marshal contract attributes")
		}
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO eis.contract (family, number, notice_number, subject, price, currency, published_at, ends_at,
		   status, attributes, source_file, customer_id, trading_platform_id, region_id, classification_code_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`,
		c.Family.String(), c.Number, c.NoticeNumber, c.Subject, c.Price, c.Currency, c.PublishedAt, c.EndsAt,
		c.Status, attrs, c.SourceFile, c.CustomerID, c.TradingPlatformID, c.RegionID, c.ClassificationCodeID,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert contract from %s", c.SourceFile)
	}
	return id, nil
}

func (s *PostgresStore) InsertDocumentLinks(ctx context.Context, links []model.DocumentLink) (int64, error) {
	rows := make([][]any, len(links))
	for i, l := range links {
		rows[i] = []any{l.ContractID, l.FileName, l.URL}
	}
	return db.CopyFrom(ctx, s.pool, "eis.document_link", []string{"contract_id", "file_name", "url"}, rows)
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.LedgerStats, error) {
	var st model.LedgerStats
	err := s.pool.QueryRow(ctx, `SELECT
		(SELECT count(*) FROM eis.processed_file),
		(SELECT count(*) FROM eis.processed_date),
		(SELECT max(date) FROM eis.processed_date),
		(SELECT count(*) FROM eis.customer),
		(SELECT count(*) FROM eis.trading_platform),
		(SELECT count(*) FROM eis.contract),
		(SELECT count(*) FROM eis.document_link)`,
	).Scan(&st.ProcessedFiles, &st.ProcessedDates, &st.LastProcessedDate, &st.Customers,
		&st.TradingPlatforms, &st.Contracts, &st.DocumentLinks)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	return &st, nil
}
