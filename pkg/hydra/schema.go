package hydra

import (
	"context"
	"fmt"
)

// Schema describes the resources exposed by the API. It is produced by an
// external documentation parser and read-only to this package.
type Schema struct {
	Resources []Resource
}

// Resource looks up a resource description by name.
func (s *Schema) Resource(name string) (*Resource, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Resources {
		if s.Resources[i].Name == name {
			return &s.Resources[i], true
		}
	}
	return nil, false
}

// Resource describes one API resource: its fields and the filter parameters
// its collection endpoint accepts.
type Resource struct {
	Name       string
	Fields     []Field
	Parameters []Parameter
}

// Field looks up a field descriptor by name.
func (r *Resource) Field(name string) (*Field, bool) {
	if r == nil {
		return nil, false
	}
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i], true
		}
	}
	return nil, false
}

// HasIDSearchFilter reports whether the collection endpoint accepts an `id`
// search parameter, which lets GetMany resolve several documents with a
// single filtered list request.
func (r *Resource) HasIDSearchFilter() bool {
	if r == nil {
		return false
	}
	for _, p := range r.Parameters {
		if p.Variable == "id" || p.Variable == "id[]" {
			return true
		}
	}
	return false
}

// Field describes one resource field. Reference holds the IRI of the
// referenced resource for relation fields, "" otherwise. Transform optionally
// carries normalize/denormalize capabilities (see Normalizer, Denormalizer);
// a nil Transform means identity.
type Field struct {
	Name      string
	Reference string
	Transform any
}

// Parameter describes one filter parameter of a collection endpoint.
type Parameter struct {
	Variable string
	Range    string
}

// Normalizer converts a caller-supplied field value into its wire form before
// a create or update request is encoded. Field transforms implement it
// optionally; absence means the value passes through unchanged.
type Normalizer interface {
	NormalizeData(ctx context.Context, value any) (any, error)
}

// Denormalizer converts a wire field value into its caller-facing form after
// a response has been decoded.
type Denormalizer interface {
	DenormalizeData(ctx context.Context, value any) (any, error)
}

// CustomRoute is an extra route advertised by the API documentation next to
// the standard resource endpoints. It is passed through to the caller as-is.
type CustomRoute struct {
	Name string
	Path string
}

// Introspection is the result of parsing the API documentation.
type Introspection struct {
	Schema       *Schema
	CustomRoutes []CustomRoute
}

// SchemaParser retrieves and parses the API documentation reachable from the
// entry point. Implementations are external collaborators; the provider only
// consumes the result.
type SchemaParser func(ctx context.Context, entrypoint string) (*Introspection, error)

// normalizeFields runs every matching field's Normalizer over the payload.
// Fields without the capability, and payload keys unknown to the schema, pass
// through unchanged. A nil resource (schema unavailable) is the identity.
func normalizeFields(ctx context.Context, resource *Resource, data map[string]any) (map[string]any, error) {
	if resource == nil || len(data) == 0 {
		return data, nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	for i := range resource.Fields {
		field := &resource.Fields[i]
		value, present := out[field.Name]
		if !present {
			continue
		}
		normalizer, ok := field.Transform.(Normalizer)
		if !ok {
			continue
		}
		normalized, err := normalizer.NormalizeData(ctx, value)
		if err != nil {
			return nil, fmt.Errorf("normalize field %q: %w", field.Name, err)
		}
		out[field.Name] = normalized
	}
	return out, nil
}

// denormalizeFields mirrors normalizeFields for decoded documents, driven by
// each field's Denormalizer and applied in place (the document is already a
// private copy at this point).
func denormalizeFields(ctx context.Context, resource *Resource, doc Document) (Document, error) {
	if resource == nil || len(doc) == 0 {
		return doc, nil
	}
	for i := range resource.Fields {
		field := &resource.Fields[i]
		value, present := doc[field.Name]
		if !present {
			continue
		}
		denormalizer, ok := field.Transform.(Denormalizer)
		if !ok {
			continue
		}
		denormalized, err := denormalizer.DenormalizeData(ctx, value)
		if err != nil {
			return nil, fmt.Errorf("denormalize field %q: %w", field.Name, err)
		}
		doc[field.Name] = denormalized
	}
	return doc, nil
}
