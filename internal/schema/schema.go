// Package schema validates queue item payloads against per-entity-type
// JSON Schemas at enqueue time, so a malformed snapshot is rejected before
// it reaches the queue instead of failing every drain.
package schema

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	mu       sync.Mutex
	compiled = map[string]*gojsonschema.Schema{}
)

// ValidationErrorItem is one field-level schema violation.
type ValidationErrorItem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// PayloadValidationError carries all violations for one payload.
type PayloadValidationError struct {
	EntityType string                `json:"entity_type"`
	Errors     []ValidationErrorItem `json:"validation_errors"`
}

func (e *PayloadValidationError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("payload validation failed for %s", e.EntityType)
	}
	return fmt.Sprintf("payload validation failed for %s: %s: %s",
		e.EntityType, e.Errors[0].Path, e.Errors[0].Message)
}

// IsPayloadValidationError reports whether err is a schema violation.
func IsPayloadValidationError(err error) bool {
	_, ok := err.(*PayloadValidationError)
	return ok
}

func schemaFor(entityType string) (*gojsonschema.Schema, error) {
	mu.Lock()
	defer mu.Unlock()
	if s, ok := compiled[entityType]; ok {
		return s, nil
	}
	raw, err := schemaFS.ReadFile("schemas/" + entityType + ".json")
	if err != nil {
		return nil, fmt.Errorf("no payload schema for entity type %q", entityType)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", entityType, err)
	}
	compiled[entityType] = s
	return s, nil
}

// Validate checks a payload snapshot against the schema for its entity
// type. An empty payload validates as an empty object.
func Validate(entityType string, payload []byte) error {
	s, err := schemaFor(entityType)
	if err != nil {
		return err
	}

	doc := strings.TrimSpace(string(payload))
	if doc == "" {
		doc = "{}"
	}
	res, err := s.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	if res.Valid() {
		return nil
	}
	items := make([]ValidationErrorItem, 0, len(res.Errors()))
	for _, item := range res.Errors() {
		items = append(items, ValidationErrorItem{
			Path:    item.Field(),
			Message: item.Description(),
			Value:   item.Value(),
		})
	}
	return &PayloadValidationError{EntityType: entityType, Errors: items}
}
