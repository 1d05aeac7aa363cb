// Package resolve decides whether an extracted customer or trading platform
// is new, already known, or an update of a known row, and applies that
// decision through a store.
package resolve

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/eis-ingest/internal/model"
)

// MergeSeparator separates historical values of a merged attribute.
const MergeSeparator = "; "

// Identity conflicts. They abandon the enclosing document but never the sweep.
var (
	ErrCustomerMissing    = eris.New("resolve: document has no customer tax id")
	ErrDuplicateContact   = eris.New("resolve: contact already belongs to another customer")
	ErrPlatformMissing    = eris.New("resolve: document has no trading platform name")
	ErrPlatformURLMissing = eris.New("resolve: unseen trading platform has no url")
)

// IsConflict reports whether err is an identity conflict rather than a
// persistence failure.
func IsConflict(err error) bool {
	for _, target := range []error{ErrCustomerMissing, ErrDuplicateContact, ErrPlatformMissing, ErrPlatformURLMissing} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Outcome is the decision taken for one entity.
type Outcome int

const (
	Inserted Outcome = iota + 1
	Updated
	Unchanged
	Existing
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	case Existing:
		return "existing"
	default:
		return "unknown"
	}
}

// CustomerStore is the customer subset of the persistence gateway.
type CustomerStore interface {
	// FindCustomerByTaxID returns nil and no error when the tax id is unknown.
	FindCustomerByTaxID(ctx context.Context, taxID string) (*model.Customer, error)
	ContactExists(ctx context.Context, contact string) (bool, error)
	InsertCustomer(ctx context.Context, c model.Customer) (int64, error)
	UpdateCustomer(ctx context.Context, id int64, patch model.CustomerPatch) error
}

// PlatformStore is the trading platform subset of the persistence gateway.
type PlatformStore interface {
	// FindPlatformByName returns nil and no error when the name is unknown.
	FindPlatformByName(ctx context.Context, name string) (*model.TradingPlatform, error)
	InsertPlatform(ctx context.Context, p model.TradingPlatform) (int64, error)
}

// Store combines both subsets.
type Store interface {
	CustomerStore
	PlatformStore
}

// Resolver holds no state; the store is passed per call so the same resolver
// serves both auto-commit and transactional writes.
type Resolver struct {
	log *zap.Logger
}

// New returns a Resolver.
func New() *Resolver {
	return &Resolver{log: zap.L().With(zap.String("component", "resolve"))}
}

// Customer resolves an incoming customer by tax id: insert when unseen,
// merge non-identity attributes when known.
func (r *Resolver) Customer(ctx context.Context, s CustomerStore, in model.Customer) (int64, Outcome, error) {
	taxID := strings.TrimSpace(in.TaxID)
	if taxID == "" {
		return 0, 0, ErrCustomerMissing
	}
	in.TaxID = taxID

	existing, err := s.FindCustomerByTaxID(ctx, taxID)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "resolve: find customer %s", taxID)
	}

	if existing == nil {
		if in.Contact != nil {
			taken, err := s.ContactExists(ctx, *in.Contact)
			if err != nil {
				return 0, 0, eris.Wrap(err, "resolve: check contact")
			}
			if taken {
				r.log.Warn("duplicate contact, customer not created",
					zap.String("tax_id", taxID),
					zap.String("contact", *in.Contact),
				)
				return 0, 0, eris.Wrapf(ErrDuplicateContact, "tax id %s", taxID)
			}
		}
		id, err := s.InsertCustomer(ctx, in)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "resolve: insert customer %s", taxID)
		}
		r.log.Debug("customer inserted", zap.String("tax_id", taxID), zap.Int64("id", id))
		return id, Inserted, nil
	}

	patch := MergeCustomer(*existing, in)
	if patch.Empty() {
		return existing.ID, Unchanged, nil
	}
	if err := s.UpdateCustomer(ctx, existing.ID, patch); err != nil {
		return 0, 0, eris.Wrapf(err, "resolve: update customer %s", taxID)
	}
	r.log.Debug("customer merged", zap.String("tax_id", taxID), zap.Int64("id", existing.ID))
	return existing.ID, Updated, nil
}

// Platform resolves a trading platform by name. Known platforms are never
// updated; an unseen platform needs a url.
func (r *Resolver) Platform(ctx context.Context, s PlatformStore, in model.TradingPlatform) (int64, Outcome, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return 0, 0, ErrPlatformMissing
	}
	in.Name = name

	existing, err := s.FindPlatformByName(ctx, name)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "resolve: find platform %s", name)
	}
	if existing != nil {
		return existing.ID, Existing, nil
	}

	if in.URL == nil || strings.TrimSpace(*in.URL) == "" {
		r.log.Warn("unseen trading platform without url", zap.String("platform", name))
		return 0, 0, eris.Wrapf(ErrPlatformURLMissing, "platform %s", name)
	}
	id, err := s.InsertPlatform(ctx, in)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "resolve: insert platform %s", name)
	}
	return id, Inserted, nil
}

// MergeValue folds incoming into the history held by existing. An absent
// incoming value keeps existing; a value already in the history is a no-op;
// anything else is appended. The returned flag reports a change.
func MergeValue(existing, incoming *string) (*string, bool) {
	if incoming == nil {
		return existing, false
	}
	in := strings.TrimSpace(*incoming)
	if in == "" {
		return existing, false
	}
	if existing == nil || strings.TrimSpace(*existing) == "" {
		return &in, true
	}
	for _, part := range strings.Split(*existing, MergeSeparator) {
		if strings.TrimSpace(part) == in {
			return existing, false
		}
	}
	merged := *existing + MergeSeparator + in
	return &merged, true
}

// MergeCustomer returns only the attributes of existing that incoming
// changes. Name and tax id are identity and never merged.
func MergeCustomer(existing, incoming model.Customer) model.CustomerPatch {
	var p model.CustomerPatch
	merge := func(dst **string, cur, in *string) {
		if v, changed := MergeValue(cur, in); changed {
			*dst = v
		}
	}
	merge(&p.LegalAddress, existing.LegalAddress, incoming.LegalAddress)
	merge(&p.ActualAddress, existing.ActualAddress, incoming.ActualAddress)
	merge(&p.Contact, existing.Contact, incoming.Contact)
	merge(&p.ContactPhone, existing.ContactPhone, incoming.ContactPhone)
	merge(&p.ContactEmail, existing.ContactEmail, incoming.ContactEmail)
	return p
}
