// Package schema loads the declarative tag-to-locator mappings used to extract
// entities from each document family.
package schema

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/eis-ingest/internal/model"
)

// ErrSchemaNotFound is returned when no schema is configured for a family.
var ErrSchemaNotFound = eris.New("schema: not found")

// Policy decides how multiple matches of a locator collapse into one value.
type Policy string

const (
	PolicyJoin  Policy = "join"  // all values joined with "; "
	PolicyFirst Policy = "first" // first value in document order
)

// Field maps one output field to a locator.
type Field struct {
	Name    string `yaml:"field"`
	Locator string `yaml:"locator"`
	Policy  Policy `yaml:"policy,omitempty"`
}

// PrintForm describes a link whose URL lives at Locator and whose display
// name is fixed.
type PrintForm struct {
	Locator  string `yaml:"locator"`
	FileName string `yaml:"file_name"`
}

// Attachment describes a repeated element carrying a file name and URL.
type Attachment struct {
	Locator  string `yaml:"locator"`
	FileName string `yaml:"file_name"`
	URL      string `yaml:"url"`
}

// Links groups the two link kinds.
type Links struct {
	PrintForms  []PrintForm  `yaml:"print_forms"`
	Attachments []Attachment `yaml:"attachments"`
}

// Schema is the extraction mapping of one document family.
type Schema struct {
	Family         model.DocumentFamily `yaml:"-"`
	Contract       []Field              `yaml:"contract"`
	Customer       []Field              `yaml:"customer"`
	Platform       []Field              `yaml:"platform"`
	Contact        []string             `yaml:"contact"`
	Classification []string             `yaml:"classification"`
	Links          Links                `yaml:"links"`
}

// DefaultPrintFormName is used when a print form entry has no display name.
const DefaultPrintFormName = "Печатная форма"

// Load reads a schema file for the given family.
func Load(path string, family model.DocumentFamily) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read %s", path)
	}
	s, err := Parse(data, family)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: %s", path)
	}
	return s, nil
}

// Parse decodes a schema document and applies defaults.
func Parse(data []byte, family model.DocumentFamily) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "schema: parse yaml")
	}
	s.Family = family

	applyPolicy(s.Contract, PolicyJoin)
	applyPolicy(s.Customer, PolicyFirst)
	applyPolicy(s.Platform, PolicyFirst)
	for i := range s.Links.PrintForms {
		if s.Links.PrintForms[i].FileName == "" {
			s.Links.PrintForms[i].FileName = DefaultPrintFormName
		}
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func applyPolicy(fields []Field, def Policy) {
	for i := range fields {
		if fields[i].Policy == "" {
			fields[i].Policy = def
		}
	}
}

func (s *Schema) validate() error {
	for _, section := range []struct {
		name   string
		fields []Field
	}{
		{"contract", s.Contract},
		{"customer", s.Customer},
		{"platform", s.Platform},
	} {
		seen := make(map[string]bool, len(section.fields))
		for _, f := range section.fields {
			if f.Name == "" || f.Locator == "" {
				return eris.Errorf("schema: %s field needs both field and locator (got %q -> %q)", section.name, f.Name, f.Locator)
			}
			if f.Policy != PolicyJoin && f.Policy != PolicyFirst {
				return eris.Errorf("schema: %s.%s has unknown policy %q", section.name, f.Name, f.Policy)
			}
			if seen[f.Name] {
				return eris.Errorf("schema: %s.%s is mapped twice", section.name, f.Name)
			}
			seen[f.Name] = true
		}
	}
	for _, a := range s.Links.Attachments {
		if a.Locator == "" || a.FileName == "" || a.URL == "" {
			return eris.Errorf("schema: attachment link needs locator, file_name and url (got %+v)", a)
		}
	}
	for _, p := range s.Links.PrintForms {
		if p.Locator == "" {
			return eris.New("schema: print form link needs a locator")
		}
	}
	return nil
}

// Set holds one schema per family. It is built once and never mutated.
type Set struct {
	schemas map[model.DocumentFamily]*Schema
}

// NewSet builds a Set from already-loaded schemas.
func NewSet(schemas ...*Schema) *Set {
	s := &Set{schemas: make(map[model.DocumentFamily]*Schema, len(schemas))}
	for _, sc := range schemas {
		s.schemas[sc.Family] = sc
	}
	return s
}

// LoadSet loads every family's schema from the given paths. Any failure is a
// configuration error.
func LoadSet(paths map[model.DocumentFamily]string) (*Set, error) {
	var loaded []*Schema
	for _, family := range model.Families {
		path, ok := paths[family]
		if !ok || path == "" {
			continue
		}
		s, err := Load(path, family)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, s)
	}
	return NewSet(loaded...), nil
}

// For returns the schema of family or ErrSchemaNotFound.
func (s *Set) For(family model.DocumentFamily) (*Schema, error) {
	if s != nil {
		if sc, ok := s.schemas[family]; ok {
			return sc, nil
		}
	}
	return nil, eris.Wrapf(ErrSchemaNotFound, "family %s", family)
}
