// Package extract applies a family schema to a parsed document and produces
// the raw field maps of every entity the document carries. It never touches
// the store.
package extract

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/eis-ingest/internal/model"
	"github.com/sells-group/eis-ingest/internal/schema"
	"github.com/sells-group/eis-ingest/internal/xmltree"
)

// JoinSeparator joins repeated values of join-policy fields.
const JoinSeparator = "; "

// Fields is an untyped field map. An absent key means the field is null.
type Fields map[string]string

// Get returns the value of name or nil when absent.
func (f Fields) Get(name string) *string {
	v, ok := f[name]
	if !ok {
		return nil
	}
	return &v
}

// Extraction is everything pulled from one document.
type Extraction struct {
	Family   model.DocumentFamily
	Contract Fields
	Customer Fields
	Platform Fields
	Contact  *string
	Links    []model.DocumentLink

	// ClassificationCode is already normalized; empty when the document
	// carries none.
	ClassificationCode string
	RawClassification  string
}

// Extractor selects the schema of a family and applies it.
type Extractor struct {
	schemas *schema.Set
}

// New returns an Extractor over an immutable schema set.
func New(schemas *schema.Set) *Extractor {
	return &Extractor{schemas: schemas}
}

// Extract applies the family's schema to root. It fails with
// schema.ErrSchemaNotFound when the family has no schema.
func (e *Extractor) Extract(root *xmltree.Node, family model.DocumentFamily) (*Extraction, error) {
	s, err := e.schemas.For(family)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, eris.New("extract: nil document")
	}
	return Apply(root, s), nil
}

// Apply is the pure mapping of a document through one schema.
func Apply(root *xmltree.Node, s *schema.Schema) *Extraction {
	out := &Extraction{
		Family:   s.Family,
		Contract: applyFields(root, s.Contract),
		Customer: applyFields(root, s.Customer),
		Platform: applyFields(root, s.Platform),
		Contact:  ComposeContact(root, s.Contact),
		Links:    extractLinks(root, s.Links),
	}
	for _, loc := range s.Classification {
		if v, ok := xmltree.First(root, loc); ok {
			out.RawClassification = v
			out.ClassificationCode = NormalizeClassificationCode(v)
			break
		}
	}
	return out
}

func applyFields(root *xmltree.Node, fields []schema.Field) Fields {
	out := make(Fields, len(fields))
	for _, f := range fields {
		values := xmltree.Resolve(root, f.Locator)
		if len(values) == 0 {
			continue
		}
		if f.Policy == schema.PolicyFirst {
			out[f.Name] = values[0]
			continue
		}
		out[f.Name] = strings.Join(values, JoinSeparator)
	}
	return out
}

// ComposeContact joins the first value of each name-part locator with single
// spaces, skipping blank parts. It returns nil when every part is blank.
func ComposeContact(root *xmltree.Node, parts []string) *string {
	var names []string
	for _, loc := range parts {
		if v, ok := xmltree.First(root, loc); ok {
			names = append(names, v)
		}
	}
	return model.StringPtr(strings.Join(names, " "))
}

func extractLinks(root *xmltree.Node, links schema.Links) []model.DocumentLink {
	var out []model.DocumentLink
	for _, pf := range links.PrintForms {
		for _, url := range xmltree.Resolve(root, pf.Locator) {
			out = append(out, model.DocumentLink{FileName: pf.FileName, URL: url})
		}
	}
	for _, a := range links.Attachments {
		for _, n := range xmltree.ResolveNodes(root, a.Locator) {
			name, okName := xmltree.First(n, a.FileName)
			url, okURL := xmltree.First(n, a.URL)
			if !okName || !okURL {
				continue
			}
			out = append(out, model.DocumentLink{FileName: name, URL: url})
		}
	}
	return out
}

// NormalizeClassificationCode collapses equivalent spellings of a
// hierarchical code: a two-segment code ending in 0 loses that digit
// ("21.10" -> "21.1", "62.0" -> "62") and a trailing segment of exactly "0"
// is dropped ("62.01.0" -> "62.01"). Other codes are returned unchanged.
func NormalizeClassificationCode(code string) string {
	code = strings.TrimSpace(code)
	segments := strings.Split(code, ".")
	switch {
	case len(segments) == 2 && strings.HasSuffix(code, "0"):
		return strings.TrimSuffix(code[:len(code)-1], ".")
	case len(segments) > 2 && segments[len(segments)-1] == "0":
		return strings.Join(segments[:len(segments)-1], ".")
	}
	return code
}
