// Package field defines the normalized description of a fillable form element
// as extracted from a rendered task page. Records are produced by the browser
// driver and consumed by the solvers and the scoring engine; the core never
// touches markup directly.
package field

import "fmt"

// Kind identifies the UI semantics of a form element. It is a closed enum:
// the scoring engine dispatches on it and rejects anything it does not know.
type Kind string

const (
	KindText          Kind = "text"
	KindTextarea      Kind = "textarea"
	KindSelect        Kind = "select"
	KindPassword      Kind = "password"
	KindEmail         Kind = "email"
	KindNumber        Kind = "number"
	KindTel           Kind = "tel"
	KindURL           Kind = "url"
	KindButton        Kind = "button"
	KindColor         Kind = "color"
	KindDate          Kind = "date"
	KindDatetimeLocal Kind = "datetime-local"
	KindFile          Kind = "file"
	KindImage         Kind = "image"
	KindRange         Kind = "range"
	KindHidden        Kind = "hidden"
	KindRadio         Kind = "radio"
	KindCheckbox      Kind = "checkbox"
)

var allKinds = map[Kind]bool{
	KindText: true, KindTextarea: true, KindSelect: true, KindPassword: true,
	KindEmail: true, KindNumber: true, KindTel: true, KindURL: true,
	KindButton: true, KindColor: true, KindDate: true, KindDatetimeLocal: true,
	KindFile: true, KindImage: true, KindRange: true, KindHidden: true,
	KindRadio: true, KindCheckbox: true,
}

// ParseKind maps a raw tag/type attribute to a Kind. An <input> with an empty
// type attribute is a text input per the HTML spec.
func ParseKind(tag, typeAttr string) (Kind, error) {
	switch tag {
	case "textarea":
		return KindTextarea, nil
	case "select":
		return KindSelect, nil
	case "input":
		if typeAttr == "" {
			return KindText, nil
		}
		k := Kind(typeAttr)
		if allKinds[k] {
			return k, nil
		}
		return "", fmt.Errorf("unknown input type %q", typeAttr)
	default:
		return "", fmt.Errorf("unknown form tag %q", tag)
	}
}

// IsValid reports whether k is one of the known kinds.
func (k Kind) IsValid() bool { return allKinds[k] }

// IsChoice reports whether the element carries a fixed option list.
func (k Kind) IsChoice() bool {
	return k == KindRadio || k == KindCheckbox || k == KindSelect
}

// Position holds layout and source-order hints for a field. Informational
// only: scoring never reorders fields based on it.
type Position struct {
	X            int `json:"x"`
	Y            int `json:"y"`
	SourceOffset int `json:"source_offset"`
}

// Record describes one fillable element and its resolved value(s) within a
// rendered task instance. Name is unique within one instance; radio and
// checkbox groups may report zero values, text fields usually exactly one,
// and duplicate-named elements may report more.
type Record struct {
	TaskName string   `json:"task_name"`
	URL      string   `json:"url"`
	Name     string   `json:"field_name"`
	Kind     Kind     `json:"field_kind"`
	Position Position `json:"position"`
	Values   []string `json:"values"`

	// Options lists the selectable values for choice kinds (radio, select,
	// checkbox). Empty for free-form kinds.
	Options []string `json:"options,omitempty"`

	// Visible is false for elements that are hidden or have zero size on the
	// rendered page. Invisible fields are never filled but still scored.
	Visible bool `json:"visible"`
}

func (r Record) String() string {
	return fmt.Sprintf("field(task=%s name=%s kind=%s values=%v)", r.TaskName, r.Name, r.Kind, r.Values)
}

// DefaultExcludedNames are bookkeeping fields injected by the task platform
// that must never be solved or scored.
var DefaultExcludedNames = []string{
	"csrfmiddlewaretoken", // hidden CSRF field added by the framework
	"worker_ip",           // hidden bookkeeping field
	"ee",
}

// ExclusionSet answers membership queries over excluded field names.
type ExclusionSet map[string]bool

// NewExclusionSet builds a set from the given names, falling back to
// DefaultExcludedNames when none are given.
func NewExclusionSet(names []string) ExclusionSet {
	if len(names) == 0 {
		names = DefaultExcludedNames
	}
	s := make(ExclusionSet, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// Excluded reports whether the named field is excluded from scoring.
func (s ExclusionSet) Excluded(name string) bool { return s[name] }
