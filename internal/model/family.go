package model

import (
	"github.com/rotisserie/eris"
)

// DocumentFamily identifies one of the structurally distinct XML shapes
// published by the procurement feed. The family is decided once, from the
// source subsystem or directory, and carried through the pipeline.
type DocumentFamily int

const (
	NewContract44 DocumentFamily = iota + 1 // 44-FZ notices
	Recouped44                              // 44-FZ contract registry
	NewContract223                          // 223-FZ notices
	Recouped223                             // 223-FZ contract registry
)

// Families lists every known family in canonical order.
var Families = []DocumentFamily{NewContract44, Recouped44, NewContract223, Recouped223}

// String returns the configuration key of the family.
func (f DocumentFamily) String() string {
	switch f {
	case NewContract44:
		return "new_44"
	case Recouped44:
		return "recouped_44"
	case NewContract223:
		return "new_223"
	case Recouped223:
		return "recouped_223"
	default:
		return "unknown"
	}
}

// Law returns the procurement law the family is published under ("44" or "223").
func (f DocumentFamily) Law() string {
	switch f {
	case NewContract44, Recouped44:
		return "44"
	case NewContract223, Recouped223:
		return "223"
	default:
		return ""
	}
}

// Valid reports whether f is one of the known families.
func (f DocumentFamily) Valid() bool {
	return f >= NewContract44 && f <= Recouped223
}

// ParseFamily converts a configuration key like "new_44" into a DocumentFamily.
func ParseFamily(s string) (DocumentFamily, error) {
	for _, f := range Families {
		if f.String() == s {
			return f, nil
		}
	}
	return 0, eris.Errorf("unknown document family: %q (valid: new_44, recouped_44, new_223, recouped_223)", s)
}
