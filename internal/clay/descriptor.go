// Package clay describes the settings form rendered by the external
// configuration page. The descriptor is static and consumed read-only.
package clay

import (
	"encoding/json"
	"fmt"
)

// FieldType tags a form field
type FieldType string

const (
	TypeHeading FieldType = "heading"
	TypeSection FieldType = "section"
	TypeToggle  FieldType = "toggle"
	TypeSubmit  FieldType = "submit"
)

// Field is one entry of the settings form. Items is only set on sections.
type Field struct {
	Type         FieldType   `json:"type"`
	Label        string      `json:"label,omitempty"`
	MessageKey   string      `json:"messageKey,omitempty"`
	DefaultValue interface{} `json:"defaultValue,omitempty"`
	Items        []Field     `json:"items,omitempty"`
}

// Descriptor is the ordered list of top-level form fields
type Descriptor []Field

// Default returns a fresh copy of the watchface settings form
func Default() Descriptor {
	return Descriptor{
		{
			Type:         TypeHeading,
			DefaultValue: "App Configuration",
		},
		{
			Type: TypeSection,
			Items: []Field{
				{
					Type:         TypeToggle,
					MessageKey:   "LightTheme",
					Label:        "Enable Light Theme",
					DefaultValue: false,
				},
			},
		},
		{
			Type:         TypeSubmit,
			DefaultValue: "Save Settings",
		},
	}
}

// JSON serializes the descriptor in the shape the configuration page expects
func (d Descriptor) JSON() ([]byte, error) {
	return json.Marshal(d)
}

// Toggles returns every toggle in form order, looking inside sections
func (d Descriptor) Toggles() []Field {
	var toggles []Field
	var walk func(fields []Field)
	walk = func(fields []Field) {
		for _, f := range fields {
			switch f.Type {
			case TypeToggle:
				toggles = append(toggles, f)
			case TypeSection:
				walk(f.Items)
			}
		}
	}
	walk(d)
	return toggles
}

// Validate checks type tags, nesting and message key uniqueness
func (d Descriptor) Validate() error {
	seen := make(map[string]bool)
	return validateFields(d, seen, false)
}

func validateFields(fields []Field, seen map[string]bool, nested bool) error {
	for i, f := range fields {
		switch f.Type {
		case TypeHeading, TypeSubmit:
		case TypeToggle:
			if f.MessageKey == "" {
				return fmt.Errorf("field %d: toggle requires a messageKey", i)
			}
			if _, ok := f.DefaultValue.(bool); !ok {
				return fmt.Errorf("field %d: toggle %s default must be a bool, got %T", i, f.MessageKey, f.DefaultValue)
			}
		case TypeSection:
			if nested {
				return fmt.Errorf("field %d: sections cannot be nested", i)
			}
			if err := validateFields(f.Items, seen, true); err != nil {
				return fmt.Errorf("section %d: %v", i, err)
			}
		default:
			return fmt.Errorf("field %d: unknown type %q", i, f.Type)
		}

		if f.Type != TypeSection && len(f.Items) > 0 {
			return fmt.Errorf("field %d: only sections may carry items", i)
		}

		if f.MessageKey != "" {
			if seen[f.MessageKey] {
				return fmt.Errorf("field %d: duplicate messageKey %s", i, f.MessageKey)
			}
			seen[f.MessageKey] = true
		}
	}
	return nil
}
