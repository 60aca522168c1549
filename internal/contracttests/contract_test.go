package contracttests

import (
	"encoding/json"
	"testing"

	"github.com/qrow-bridge/internal/clay"
)

func TestJSONRPCEnvelopeValidation(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{
			name:    "valid_response",
			json:    `{"jsonrpc":"2.0","id":"test","result":{"status":"ok"}}`,
			wantErr: false,
		},
		{
			name:    "valid_error",
			json:    `{"jsonrpc":"2.0","id":"test","error":{"code":-32601,"message":"Method not found"}}`,
			wantErr: false,
		},
		{
			name:    "invalid_version",
			json:    `{"jsonrpc":"1.0","id":"test","result":{"status":"ok"}}`,
			wantErr: true,
		},
		{
			name:    "missing_id",
			json:    `{"jsonrpc":"2.0","result":{"status":"ok"}}`,
			wantErr: true,
		},
		{
			name:    "both_result_and_error",
			json:    `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`,
			wantErr: true,
		},
		{
			name:    "neither_result_nor_error",
			json:    `{"jsonrpc":"2.0","id":1}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnvelope([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEnvelope() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestErrorResponseValidation(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{"valid", `{"code":-32603,"message":"MALFORMED_RESPONSE"}`, false},
		{"missing_code", `{"message":"x"}`, true},
		{"missing_message", `{"code":1}`, true},
		{"string_code", `{"code":"1","message":"x"}`, true},
		{"not_object", `"boom"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateErrorResponse(json.RawMessage(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateErrorResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDescriptorContract(t *testing.T) {
	data, err := clay.Default().JSON()
	if err != nil {
		t.Fatalf("Failed to serialize descriptor: %v", err)
	}
	if err := ValidateDescriptor(data); err != nil {
		t.Errorf("Default descriptor breaks the contract: %v", err)
	}
}

func TestDescriptorValidation(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{
			name:    "top_level_toggle",
			json:    `[{"type":"toggle","messageKey":"LightTheme","defaultValue":false}]`,
			wantErr: false,
		},
		{
			name:    "no_toggle",
			json:    `[{"type":"heading","defaultValue":"x"}]`,
			wantErr: true,
		},
		{
			name:    "two_toggles",
			json:    `[{"type":"section","items":[{"type":"toggle","messageKey":"LightTheme","defaultValue":false},{"type":"toggle","messageKey":"Other","defaultValue":false}]}]`,
			wantErr: true,
		},
		{
			name:    "wrong_default",
			json:    `[{"type":"toggle","messageKey":"LightTheme","defaultValue":true}]`,
			wantErr: true,
		},
		{
			name:    "missing_default",
			json:    `[{"type":"toggle","messageKey":"LightTheme"}]`,
			wantErr: true,
		},
		{
			name:    "unknown_type",
			json:    `[{"type":"color","messageKey":"bgColor"},{"type":"toggle","messageKey":"LightTheme","defaultValue":false}]`,
			wantErr: true,
		},
		{
			name:    "not_array",
			json:    `{"type":"toggle"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDescriptor([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDescriptor() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAppMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{"color_string", `{"KEY_BACKGROUND_COLOR":"0xAABBCC"}`, false},
		{"color_number", `{"KEY_BACKGROUND_COLOR":11189196}`, false},
		{"empty", `{}`, false},
		{"null_color", `{"KEY_BACKGROUND_COLOR":null}`, true},
		{"extra_key", `{"KEY_BACKGROUND_COLOR":"0x0","LightTheme":true}`, true},
		{"not_object", `null`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAppMessage([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAppMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
