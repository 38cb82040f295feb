package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/hookline/dispatch/schema"
)

var userCreatedSchema = map[string]any{
	"type":     "object",
	"required": []any{"user_id"},
	"properties": map[string]any{
		"user_id": map[string]any{"type": "integer"},
		"email":   map[string]any{"type": "string"},
	},
}

func TestValidateNilSchemaAcceptsAnything(t *testing.T) {
	v := schema.NewValidator()
	if err := v.Validate(nil, map[string]any{"whatever": true}); err != nil {
		t.Fatal(err)
	}
}

func TestValidateAccepts(t *testing.T) {
	v := schema.NewValidator()
	data := map[string]any{"user_id": 123.0, "email": "john@example.com"}
	if err := v.Validate(userCreatedSchema, data); err != nil {
		t.Fatal(err)
	}
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	v := schema.NewValidator()
	if err := v.Validate(userCreatedSchema, map[string]any{"email": "x@y.z"}); err == nil {
		t.Fatal("expected validation failure for missing user_id")
	}
}

func TestValidateRaw(t *testing.T) {
	v := schema.NewValidator()

	if err := v.ValidateRaw(userCreatedSchema, json.RawMessage(`{"user_id":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateRaw(userCreatedSchema, json.RawMessage(`{"user_id":"not-an-int"}`)); err == nil {
		t.Fatal("expected validation failure for wrong type")
	}
}

func TestValidatorCachesCompiledSchemas(t *testing.T) {
	v := schema.NewValidator()

	// Same schema twice: the second call must hit the compile cache and
	// behave identically.
	for i := 0; i < 2; i++ {
		if err := v.Validate(userCreatedSchema, map[string]any{"user_id": 1.0}); err != nil {
			t.Fatal(err)
		}
	}
}
