// Package validation provides JSON-LD document validation for the admin client.
//
// This package validates both the structure and semantic correctness of the
// JSON-LD documents exchanged with a Hydra API. It uses:
//   - go-playground/validator for struct-level validation
//   - json-gold for JSON-LD semantic validation
//
// # Validation Process
//
// 1. JSON parsing - Ensures valid JSON syntax
// 2. Struct validation - Checks the required JSON-LD keywords
// 3. JSON-LD validation - Verifies the document expands cleanly
//
// # Usage Example
//
//	validator := validation.New()
//	result, err := validator.ValidateDocument(jsonData)
//	if err != nil {
//	    // Handle error
//	}
//	if !result.Valid {
//	    for _, err := range result.Errors {
//	        fmt.Printf("%s: %s\n", err.Field, err.Message)
//	    }
//	}
package validation

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/piprate/json-gold/ld"
)

// Validator handles JSON-LD document validation.
// It combines struct validation with JSON-LD semantic validation to ensure
// both syntactic and semantic correctness of documents.
type Validator struct {
	// structValidator validates Go struct constraints and tags
	structValidator *validator.Validate

	// jsonldProcessor validates JSON-LD semantic correctness
	jsonldProcessor *ld.JsonLdProcessor
}

// ValidationError represents a single validation error with field-level details.
// It includes the field name, error message, and optionally the invalid value.
type ValidationError struct {
	// Field is the name of the field that failed validation
	Field string `json:"field"`

	// Message describes why the validation failed
	Message string `json:"message"`

	// Value is the invalid value that caused the error (optional)
	Value interface{} `json:"value,omitempty"`
}

// ValidationResult represents the complete result of a validation operation.
// It indicates whether validation passed and includes any errors found.
type ValidationResult struct {
	// Valid is true if validation passed, false otherwise
	Valid bool `json:"valid"`

	// Errors contains all validation errors found (empty if Valid is true)
	Errors []ValidationError `json:"errors,omitempty"`
}

// envelope carries the JSON-LD keywords every item document must have.
type envelope struct {
	Context interface{} `json:"@context" validate:"required"`
	ID      string      `json:"@id" validate:"required"`
	Type    interface{} `json:"@type" validate:"required"`
}

// New creates a new Validator instance with struct and JSON-LD validators.
func New() *Validator {
	return &Validator{
		structValidator: validator.New(),
		jsonldProcessor: ld.NewJsonLdProcessor(),
	}
}

// ValidateDocument validates a single JSON-LD item document.
func (v *Validator) ValidateDocument(data []byte) (*ValidationResult, error) {
	var doc envelope

	// Parse JSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Field:   "document",
					Message: fmt.Sprintf("Invalid JSON: %v", err),
				},
			},
		}, nil
	}

	// Validate JSON-LD keywords
	errors := v.validateEnvelope(&doc)

	// Validate semantic structure
	errors = append(errors, v.validateJSONLD(data)...)

	return &ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}, nil
}

// ValidateCollection validates a Hydra collection envelope: the member list,
// the total and the pagination view.
func (v *Validator) ValidateCollection(data []byte) (*ValidationResult, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Field:   "document",
					Message: fmt.Sprintf("Invalid JSON: %v", err),
				},
			},
		}, nil
	}

	var errors []ValidationError

	members, ok := collectionValue(doc, "member").([]interface{})
	if !ok {
		errors = append(errors, ValidationError{
			Field:   "hydra:member",
			Message: "Missing or invalid member list (must be an array)",
		})
	}
	for i, member := range members {
		m, ok := member.(map[string]interface{})
		if !ok {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("hydra:member[%d]", i),
				Message: "Member must be a JSON object",
			})
			continue
		}
		if _, hasID := m["@id"]; !hasID {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("hydra:member[%d].@id", i),
				Message: "Missing @id field (required for JSON-LD)",
			})
		}
	}

	if total, present := doc["hydra:totalItems"]; present {
		if n, ok := total.(float64); !ok || n < 0 {
			errors = append(errors, ValidationError{
				Field:   "hydra:totalItems",
				Message: "Total must be a non-negative number",
				Value:   total,
			})
		}
	}

	if view, present := doc["hydra:view"]; present {
		if _, ok := view.(map[string]interface{}); !ok {
			errors = append(errors, ValidationError{
				Field:   "hydra:view",
				Message: "View must be a JSON object",
				Value:   view,
			})
		}
	}

	// Expansion also covers collections.
	errors = append(errors, v.validateJSONLD(data)...)

	return &ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}, nil
}

// validateEnvelope checks the required JSON-LD keywords and the @id IRI.
func (v *Validator) validateEnvelope(doc *envelope) []ValidationError {
	var errors []ValidationError

	if err := v.structValidator.Struct(doc); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrors {
				field := keywordFor(fe.Field())
				errors = append(errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("Missing %s field (required for JSON-LD)", field),
				})
			}
		} else {
			errors = append(errors, ValidationError{
				Field:   "document",
				Message: err.Error(),
			})
		}
	}

	if doc.ID != "" && !isValidIRI(doc.ID) {
		errors = append(errors, ValidationError{
			Field:   "@id",
			Message: "Invalid IRI",
			Value:   doc.ID,
		})
	}

	return errors
}

// validateJSONLD validates JSON-LD structure using json-gold
func (v *Validator) validateJSONLD(data []byte) []ValidationError {
	var errors []ValidationError

	// Parse as generic JSON
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		errors = append(errors, ValidationError{
			Field:   "document",
			Message: fmt.Sprintf("Invalid JSON: %v", err),
		})
		return errors
	}

	// Try to expand the JSON-LD to validate it's well-formed
	options := ld.NewJsonLdOptions("")
	if _, err := v.jsonldProcessor.Expand(doc, options); err != nil {
		errors = append(errors, ValidationError{
			Field:   "document",
			Message: fmt.Sprintf("Invalid JSON-LD structure: %v", err),
		})
	}

	return errors
}

// collectionValue reads a collection key accepting both the prefixed
// ("hydra:member") and unprefixed ("member") spellings.
func collectionValue(doc map[string]interface{}, key string) interface{} {
	if v, ok := doc["hydra:"+key]; ok {
		return v
	}
	return doc[key]
}

// keywordFor maps envelope struct field names back to JSON-LD keywords.
func keywordFor(field string) string {
	switch field {
	case "Context":
		return "@context"
	case "ID":
		return "@id"
	case "Type":
		return "@type"
	}
	return field
}

// isValidIRI accepts absolute IRIs and absolute paths.
func isValidIRI(iri string) bool {
	u, err := url.Parse(iri)
	if err != nil {
		return false
	}
	return u.IsAbs() || (len(iri) > 0 && iri[0] == '/')
}
