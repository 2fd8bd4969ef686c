package schema

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Args shapes to demonstrate pointer vs non-pointer optionality
type argsWithString struct {
	City string `json:"city" jsonschema:"title=City,description=City name to look up"`
	Lang string `json:"lang,omitempty" jsonschema:"title=Language,description=Language for place names"`
}

type argsWithPointer struct {
	City string  `json:"city" jsonschema:"title=City,description=City name to look up"`
	Lang *string `json:"lang,omitempty" jsonschema:"title=Language,description=Language for place names"`
}

func TestPointerTypeSchemaGeneration(t *testing.T) {
	t.Run("String field with omitempty", func(t *testing.T) {
		rf, err := NewResponseFormat(reflect.TypeOf(argsWithString{}), true)
		require.NoError(t, err)

		// optional field stays in properties but out of required
		assert.Contains(t, rf.JSONSchema.Schema.Properties, "lang")
		assert.NotContains(t, rf.JSONSchema.Schema.Required, "lang")
		assert.Contains(t, rf.JSONSchema.Schema.Required, "city")

		jsonBytes, _ := json.MarshalIndent(rf, "", "\t")
		exp := `{
	"type": "json_schema",
	"json_schema": {
		"name": "argsWithString",
		"strict": true,
		"schema": {
			"type": "object",
			"properties": {
				"city": {
					"type": "string",
					"title": "City",
					"description": "City name to look up"
				},
				"lang": {
					"type": "string",
					"title": "Language",
					"description": "Language for place names"
				}
			},
			"additionalProperties": false,
			"required": [
				"city"
			]
		}
	}
}`
		assert.Equal(t, exp, string(jsonBytes))
	})

	t.Run("Pointer field with omitempty", func(t *testing.T) {
		rf, err := NewResponseFormat(reflect.TypeOf(argsWithPointer{}), true)
		require.NoError(t, err)

		assert.Contains(t, rf.JSONSchema.Schema.Properties, "lang")
		assert.NotContains(t, rf.JSONSchema.Schema.Required, "lang")
		assert.Contains(t, rf.JSONSchema.Schema.Required, "city")
	})
}
