package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/eis-ingest/internal/model"
)

// Contract field names with a typed column. Everything else a schema maps
// lands in Contract.Attributes.
const (
	FieldNumber       = "number"
	FieldNoticeNumber = "notice_number"
	FieldSubject      = "subject"
	FieldPrice        = "price"
	FieldCurrency     = "currency"
	FieldPublishedAt  = "published_at"
	FieldEndsAt       = "ends_at"
	FieldStatus       = "status"
)

// Customer and platform field names.
const (
	FieldTaxID         = "tax_id"
	FieldName          = "name"
	FieldLegalAddress  = "legal_address"
	FieldActualAddress = "actual_address"
	FieldContactPhone  = "contact_phone"
	FieldContactEmail  = "contact_email"
	FieldURL           = "url"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02Z07:00",
	"2006-01-02",
}

// CustomerRecord projects the customer field map and composed contact.
func (x *Extraction) CustomerRecord() model.Customer {
	return model.Customer{
		TaxID:         x.Customer[FieldTaxID],
		Name:          x.Customer.Get(FieldName),
		LegalAddress:  x.Customer.Get(FieldLegalAddress),
		ActualAddress: x.Customer.Get(FieldActualAddress),
		Contact:       x.Contact,
		ContactPhone:  x.Customer.Get(FieldContactPhone),
		ContactEmail:  x.Customer.Get(FieldContactEmail),
	}
}

// PlatformRecord projects the trading platform field map.
func (x *Extraction) PlatformRecord() model.TradingPlatform {
	return model.TradingPlatform{
		Name: x.Platform[FieldName],
		URL:  x.Platform.Get(FieldURL),
	}
}

// ContractRecord projects the contract field map. Values that fail to parse as
// numbers or dates are kept verbatim in Attributes.
func (x *Extraction) ContractRecord() model.Contract {
	c := model.Contract{Family: x.Family}
	attrs := make(map[string]string)
	for name, value := range x.Contract {
		v := value
		switch name {
		case FieldNumber:
			c.Number = &v
		case FieldNoticeNumber:
			c.NoticeNumber = &v
		case FieldSubject:
			c.Subject = &v
		case FieldCurrency:
			c.Currency = &v
		case FieldStatus:
			c.Status = &v
		case FieldPrice:
			if p, ok := ParsePrice(v); ok {
				c.Price = &p
			} else {
				attrs[name] = v
			}
		case FieldPublishedAt, FieldEndsAt:
			t, ok := ParseDate(v)
			if !ok {
				attrs[name] = v
				continue
			}
			if name == FieldPublishedAt {
				c.PublishedAt = &t
			} else {
				c.EndsAt = &t
			}
		default:
			attrs[name] = v
		}
	}
	if len(attrs) > 0 {
		c.Attributes = attrs
	}
	return c
}

// ParsePrice accepts "1234.50", "1 234,50" and the first of several joined
// values.
func ParsePrice(s string) (float64, bool) {
	if i := strings.Index(s, JoinSeparator); i >= 0 {
		s = s[:i]
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseDate accepts the ISO-8601 date and date-time forms found in feeds,
// including dates carrying a zone offset ("2024-03-01+03:00").
func ParseDate(s string) (time.Time, bool) {
	if i := strings.Index(s, JoinSeparator); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
