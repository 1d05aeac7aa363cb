// Package store is the persistence gateway: ledgers, reference lookups and
// the customer, trading platform, contract and document link tables.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/eis-ingest/internal/model"
)

// ErrNotFound is returned by reference lookups for an unknown code.
var ErrNotFound = eris.New("store: not found")

// DateLayout is the calendar-day format of the processed date ledger.
const DateLayout = "2006-01-02"

// Querier is every single-statement operation. Outside WithTx each call
// commits on its own.
type Querier interface {
	// Processed file ledger.
	IsFileProcessed(ctx context.Context, fileName string) (bool, error)
	RecordProcessedFile(ctx context.Context, fileName string) error

	// Processed date ledger (crawl cursor).
	IsDateProcessed(ctx context.Context, date time.Time) (bool, error)
	RecordProcessedDate(ctx context.Context, date time.Time, summary model.SweepSummary) error
	LastProcessedDate(ctx context.Context) (*time.Time, error)

	// Reference data.
	Regions(ctx context.Context) ([]model.Region, error)
	RegionID(ctx context.Context, code string) (int64, error)
	ClassificationCodeID(ctx context.Context, code string) (int64, error)
	UpsertRegions(ctx context.Context, regions []model.Region) (int64, error)
	UpsertClassificationCodes(ctx context.Context, codes []model.ClassificationCode) (int64, error)

	// Customers. FindCustomerByTaxID returns nil, nil for an unknown tax id.
	FindCustomerByTaxID(ctx context.Context, taxID string) (*model.Customer, error)
	// ContactExists reports whether any customer's contact history holds
	// contact as a whole "; "-separated element.
	ContactExists(ctx context.Context, contact string) (bool, error)
	InsertCustomer(ctx context.Context, c model.Customer) (int64, error)
	UpdateCustomer(ctx context.Context, id int64, patch model.CustomerPatch) error

	// Trading platforms. FindPlatformByName returns nil, nil for an unknown name.
	FindPlatformByName(ctx context.Context, name string) (*model.TradingPlatform, error)
	InsertPlatform(ctx context.Context, p model.TradingPlatform) (int64, error)

	// Contracts and their links.
	InsertContract(ctx context.Context, c model.Contract) (int64, error)
	InsertDocumentLinks(ctx context.Context, links []model.DocumentLink) (int64, error)

	Stats(ctx context.Context) (*model.LedgerStats, error)
}

// Store is a Querier that can also group calls into one transaction.
type Store interface {
	Querier

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(q Querier) error) error

	Migrate(ctx context.Context) error
	Close() error
}

// customerColumns pairs patch fields with their columns in update order.
func customerColumns(p model.CustomerPatch) ([]string, []any) {
	var cols []string
	var args []any
	add := func(col string, v *string) {
		if v != nil {
			cols = append(cols, col)
			args = append(args, *v)
		}
	}
	add("legal_address", p.LegalAddress)
	add("actual_address", p.ActualAddress)
	add("contact", p.Contact)
	add("contact_phone", p.ContactPhone)
	add("contact_email", p.ContactEmail)
	return cols, args
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
