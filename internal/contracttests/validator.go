package contracttests

import (
	"encoding/json"
	"fmt"
)

// JSONRPCEnvelope validates JSON-RPC 2.0 envelope structure
type JSONRPCEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// ValidateEnvelope validates JSON-RPC 2.0 envelope compliance
func ValidateEnvelope(data []byte) error {
	var envelope JSONRPCEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	// Check jsonrpc version
	if envelope.JSONRPC != "2.0" {
		return fmt.Errorf("jsonrpc must be '2.0', got '%s'", envelope.JSONRPC)
	}

	// Check id is present
	if envelope.ID == nil {
		return fmt.Errorf("id field is required")
	}

	// Check mutual exclusivity of result and error
	hasResult := len(envelope.Result) > 0
	hasError := len(envelope.Error) > 0

	if hasResult && hasError {
		return fmt.Errorf("both result and error cannot be present")
	}

	if !hasResult && !hasError {
		return fmt.Errorf("either result or error must be present")
	}

	return nil
}

// ValidateErrorResponse validates JSON-RPC error structure
func ValidateErrorResponse(errorData json.RawMessage) error {
	var errorObj map[string]interface{}
	if err := json.Unmarshal(errorData, &errorObj); err != nil {
		return fmt.Errorf("error must be an object: %w", err)
	}

	code, hasCode := errorObj["code"]
	if !hasCode {
		return fmt.Errorf("error object must have 'code' field")
	}

	message, hasMessage := errorObj["message"]
	if !hasMessage {
		return fmt.Errorf("error object must have 'message' field")
	}

	// Validate code is numeric
	if _, ok := code.(float64); !ok {
		return fmt.Errorf("error code must be numeric")
	}

	// Validate message is string
	if _, ok := message.(string); !ok {
		return fmt.Errorf("error message must be string")
	}

	return nil
}

// ValidateDescriptor checks a serialized settings form: known type tags,
// items only on sections, and exactly one LightTheme toggle defaulting to false.
func ValidateDescriptor(data []byte) error {
	var fields []map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("descriptor must be an array of objects: %w", err)
	}

	var toggles []map[string]interface{}
	var walk func(fields []map[string]interface{}, nested bool) error
	walk = func(fields []map[string]interface{}, nested bool) error {
		for i, f := range fields {
			typ, _ := f["type"].(string)
			switch typ {
			case "heading", "submit":
			case "toggle":
				toggles = append(toggles, f)
			case "section":
				if nested {
					return fmt.Errorf("field %d: nested section", i)
				}
				rawItems, _ := f["items"].([]interface{})
				items := make([]map[string]interface{}, 0, len(rawItems))
				for j, item := range rawItems {
					m, ok := item.(map[string]interface{})
					if !ok {
						return fmt.Errorf("field %d item %d must be an object", i, j)
					}
					items = append(items, m)
				}
				if err := walk(items, true); err != nil {
					return err
				}
				continue
			default:
				return fmt.Errorf("field %d: unknown type %q", i, typ)
			}

			if _, ok := f["items"]; ok {
				return fmt.Errorf("field %d: only sections may carry items", i)
			}
		}
		return nil
	}
	if err := walk(fields, false); err != nil {
		return err
	}

	if len(toggles) != 1 {
		return fmt.Errorf("expected exactly one toggle, got %d", len(toggles))
	}
	if toggles[0]["messageKey"] != "LightTheme" {
		return fmt.Errorf("toggle messageKey must be 'LightTheme', got %v", toggles[0]["messageKey"])
	}
	if v, ok := toggles[0]["defaultValue"]; !ok || v != false {
		return fmt.Errorf("toggle defaultValue must be false, got %v", v)
	}

	return nil
}

// ValidateAppMessage checks an outbound watch payload carries no key other
// than KEY_BACKGROUND_COLOR
func ValidateAppMessage(data []byte) error {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("app message must be an object: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("app message must be an object, got null")
	}

	for key, value := range msg {
		if key != "KEY_BACKGROUND_COLOR" {
			return fmt.Errorf("unexpected app message key %q", key)
		}
		if string(value) == "null" {
			return fmt.Errorf("KEY_BACKGROUND_COLOR must be absent rather than null")
		}
	}
	return nil
}
