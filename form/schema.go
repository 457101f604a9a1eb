package form

import (
	"fmt"
	"regexp"
	"strings"
)

// InputMode distinguishes how a field collects its value.
type InputMode string

const (
	// ModeFreeText accepts arbitrary text validated by the field's validator.
	ModeFreeText InputMode = "free_text"
	// ModeChoice presents a closed enumeration of options as buttons.
	ModeChoice InputMode = "choice"
)

// Choice is one selectable option of a choice field.
type Choice struct {
	// Key is the canonical stored value, always lower-case.
	Key string
	// Label is the button text shown to the user.
	Label string
}

// Values holds collected field values keyed by field key.
// Stored values are canonical: enums lower-cased, amounts normalized.
type Values map[string]string

// Clone returns an independent copy of the values map.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// ValidateFunc checks raw input and returns the canonical value to store.
// Previously collected values are provided for dependency-conditioned rules.
type ValidateFunc func(raw string, values Values) (string, error)

// FieldSpec declares one field of a flow schema.
// Dotted keys flatten nested sub-objects, e.g. "bankAccount.country".
type FieldSpec struct {
	Key    string
	Label  string
	Prompt string
	Mode   InputMode
	// Choices enumerates valid options for ModeChoice fields.
	Choices []Choice
	// Validate checks free-text input. Optional for choice fields, where
	// membership in Choices is checked first.
	Validate ValidateFunc
	// DependsOn names a prior field whose value conditions this field's
	// validation. Clearing the dependency also clears this field.
	DependsOn string
}

func (f FieldSpec) label() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Key
}

// Schema is the ordered, immutable field contract of one flow.
type Schema struct {
	flowID string
	fields []FieldSpec
	index  map[string]int
}

// NewSchema builds a schema, enforcing unique keys and that every DependsOn
// references an earlier field.
func NewSchema(flowID string, fields ...FieldSpec) (*Schema, error) {
	if flowID == "" {
		return nil, fmt.Errorf("form: schema requires a flow id")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("form: schema %s has no fields", flowID)
	}
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Key == "" {
			return nil, fmt.Errorf("form: schema %s: field %d has empty key", flowID, i)
		}
		if _, dup := index[f.Key]; dup {
			return nil, fmt.Errorf("form: schema %s: duplicate field key %q", flowID, f.Key)
		}
		if f.Mode == "" {
			fields[i].Mode = ModeFreeText
			f = fields[i]
		}
		if f.Mode == ModeChoice && len(f.Choices) == 0 {
			return nil, fmt.Errorf("form: schema %s: choice field %q has no choices", flowID, f.Key)
		}
		if f.DependsOn != "" {
			if _, ok := index[f.DependsOn]; !ok {
				return nil, fmt.Errorf("form: schema %s: field %q depends on unknown or later field %q", flowID, f.Key, f.DependsOn)
			}
		}
		index[f.Key] = i
	}
	return &Schema{flowID: flowID, fields: fields, index: index}, nil
}

// MustSchema is NewSchema that panics on error; for static flow declarations.
func MustSchema(flowID string, fields ...FieldSpec) *Schema {
	s, err := NewSchema(flowID, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// FlowID returns the flow this schema belongs to.
func (s *Schema) FlowID() string { return s.flowID }

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Fields returns the ordered field list.
func (s *Schema) Fields() []FieldSpec { return s.fields }

// Field returns the spec for key.
func (s *Schema) Field(key string) (FieldSpec, bool) {
	i, ok := s.index[key]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[i], true
}

// Next returns the first field without a collected value, or nil when the
// schema is satisfied.
func (s *Schema) Next(values Values) *FieldSpec {
	for i := range s.fields {
		if _, ok := values[s.fields[i].Key]; !ok {
			return &s.fields[i]
		}
	}
	return nil
}

// Cursor returns the index of the next field to collect; Len() when done.
func (s *Schema) Cursor(values Values) int {
	for i := range s.fields {
		if _, ok := values[s.fields[i].Key]; !ok {
			return i
		}
	}
	return len(s.fields)
}

// Prev returns the most recently answered field in schema order.
func (s *Schema) Prev(values Values) (FieldSpec, bool) {
	for i := len(s.fields) - 1; i >= 0; i-- {
		if _, ok := values[s.fields[i].Key]; ok {
			return s.fields[i], true
		}
	}
	return FieldSpec{}, false
}

// Clear removes the value for key and, transitively, every field whose
// DependsOn chain reaches key, so stale conditional validation cannot survive.
func (s *Schema) Clear(values Values, key string) {
	if _, ok := s.index[key]; !ok {
		return
	}
	delete(values, key)
	for _, f := range s.fields {
		if f.DependsOn == key {
			s.Clear(values, f.Key)
		}
	}
}

// Validate checks raw input for field and returns the canonical value.
func (s *Schema) Validate(field FieldSpec, raw string, values Values) (string, error) {
	if field.DependsOn != "" {
		if _, ok := values[field.DependsOn]; !ok {
			return "", ErrDependencyUnmet
		}
	}
	if field.Mode == ModeChoice {
		canonical := strings.ToLower(strings.TrimSpace(raw))
		for _, c := range field.Choices {
			if c.Key == canonical {
				return c.Key, nil
			}
		}
		return "", Invalid(field.Key, "choose one of: %s", joinChoiceKeys(field.Choices))
	}
	if field.Validate != nil {
		return field.Validate(raw, values)
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", Invalid(field.Key, "a value is required")
	}
	return trimmed, nil
}

func joinChoiceKeys(choices []Choice) string {
	keys := make([]string, len(choices))
	for i, c := range choices {
		keys[i] = c.Key
	}
	return strings.Join(keys, ", ")
}

// Enum validates membership in a closed enumeration, case-insensitively,
// canonicalizing to lower-case storage.
func Enum(allowed ...string) ValidateFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[strings.ToLower(a)] = struct{}{}
	}
	return func(raw string, _ Values) (string, error) {
		canonical := strings.ToLower(strings.TrimSpace(raw))
		if _, ok := set[canonical]; !ok {
			return "", &ValidationError{Reason: fmt.Sprintf("%q is not a supported value", strings.TrimSpace(raw))}
		}
		return canonical, nil
	}
}

var amountRe = regexp.MustCompile(`^\d+(\.\d{1,8})?$`)

// Amount validates a non-negative decimal number and stores it as entered,
// trimmed. Signs, separators and currency symbols are rejected.
func Amount() ValidateFunc {
	return func(raw string, _ Values) (string, error) {
		trimmed := strings.TrimSpace(raw)
		if !amountRe.MatchString(trimmed) {
			return "", &ValidationError{Reason: "enter a non-negative number, e.g. 12.50"}
		}
		return trimmed, nil
	}
}

// NonEmpty validates that input contains at least one non-space character.
func NonEmpty() ValidateFunc {
	return func(raw string, _ Values) (string, error) {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return "", &ValidationError{Reason: "a value is required"}
		}
		return trimmed, nil
	}
}

// Match validates input against re; hint restates the constraint on failure.
func Match(re *regexp.Regexp, hint string) ValidateFunc {
	return func(raw string, _ Values) (string, error) {
		trimmed := strings.TrimSpace(raw)
		if !re.MatchString(trimmed) {
			return "", &ValidationError{Reason: hint}
		}
		return trimmed, nil
	}
}
