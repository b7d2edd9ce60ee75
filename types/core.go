package types

import "time"

// FieldKind classifies how a physical form field accepts a value.
type FieldKind string

const (
	// Text is a free-form text widget (names, amounts, identifiers).
	Text FieldKind = "text"

	// Checkbox is an independent on/off widget.
	Checkbox FieldKind = "checkbox"

	// ExclusiveGroup is a set of widgets where at most one member may be
	// "on" at a time (filing status, account type, ...).
	ExclusiveGroup FieldKind = "exclusive_group"
)

// DisplayContract declares how a text field's value is rendered.
type DisplayContract string

const (
	// DisplayPlain renders the value as-is (numbers still get the
	// canonical numeric formatting).
	DisplayPlain DisplayContract = ""

	// DisplayUpper renders identity text upper-cased.
	DisplayUpper DisplayContract = "upper"

	// DisplayDigits strips everything but digits.
	DisplayDigits DisplayContract = "digits"

	// DisplaySSN renders nine digits as XXX-XX-XXXX.
	DisplaySSN DisplayContract = "ssn"

	// DisplayEIN renders nine digits as XX-XXXXXXX.
	DisplayEIN DisplayContract = "ein"
)

// FieldSpec is the resolved destination for a semantic key within a
// specific form template. For exclusive groups PhysicalID is empty and
// Options maps each permitted option value to the physical id of the
// widget that represents it.
type FieldSpec struct {
	PhysicalID string            `yaml:"physical_id,omitempty"`
	Kind       FieldKind         `yaml:"kind"`
	Options    map[string]string `yaml:"options,omitempty"`
	Display    DisplayContract   `yaml:"display,omitempty"`

	// Group names the exclusive group this spec selects into, and Option
	// the member it selects. Set only for aliases that are shorthand for
	// one member of a group (e.g. "single" -> filing_status:single).
	Group  string `yaml:"group,omitempty"`
	Option string `yaml:"option,omitempty"`
}

// FormInfo is a catalog listing entry.
type FormInfo struct {
	FormType string `yaml:"form_type"`
	Category string `yaml:"category"`
	TaxYear  int    `yaml:"tax_year"`
}

// FormTemplate describes one supported (form_type, tax_year) pair: where
// its template bytes live and how semantic names map to physical widgets.
// Templates are loaded once and treated as read-only afterwards.
type FormTemplate struct {
	FormType    string               `yaml:"form_type"`
	TaxYear     int                  `yaml:"tax_year"`
	Category    string               `yaml:"category"`
	TemplateRef string               `yaml:"template_ref"`
	Fields      map[string]FieldSpec `yaml:"fields"`

	// FieldOrder preserves catalog declaration order, used as the final
	// tie-breaker during heuristic resolution.
	FieldOrder []string `yaml:"-"`
}

// SemanticValue is one caller-supplied key/value pair. Order of the
// containing slice is the processing order; for conflicting exclusive
// group aliases the last one processed wins.
type SemanticValue struct {
	Key   string
	Value any
}

// Identity carries the taxpayer attributes that determine document
// lineage. Attribute values are normalized (trim, lowercase) before they
// participate in identity derivation, so formatting differences never
// fork a document's history.
type Identity struct {
	Attributes map[string]string
}

// FormInput is the ephemeral per-call request: which form to fill, the
// ordered semantic values, and whose document this is.
type FormInput struct {
	FormType string
	TaxYear  int
	Values   []SemanticValue
	Identity Identity
}

// FilledDocument is the immutable record of one fill. Instances are
// never updated, only superseded by a higher version of the same
// DocumentID.
type FilledDocument struct {
	DocumentID    string    `json:"document_id"`
	Version       int       `json:"version"`
	StorageKey    string    `json:"storage_key"`
	SizeBytes     int64     `json:"size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
	FieldsFilled  int       `json:"fields_filled_count"`
	CheckboxesSet int       `json:"checkbox_count"`
	Skipped       int       `json:"skipped_count"`
	Unmapped      []string  `json:"unmapped_keys,omitempty"`
}

// VersionRecord is one append-only version-index entry.
type VersionRecord struct {
	DocumentID string    `json:"document_id"`
	Version    int       `json:"version"`
	StorageKey string    `json:"storage_key"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// Descriptor tells a caller how to retrieve a stored artifact.
type Descriptor struct {
	StorageKey string    `json:"storage_key"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
}
