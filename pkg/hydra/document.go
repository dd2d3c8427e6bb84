// Package hydra implements a generic CRUD data provider for hypermedia REST
// APIs that expose resources as JSON-LD documents following the Hydra
// vocabulary (API Platform style), with optional real-time change
// notification over a Mercure hub.
//
// The package converts between the JSON-LD object graph served by the API and
// a flattened generic-document shape: nested relations become IRI references,
// and the inlined relation bodies are kept in an embedded-document cache so
// follow-up lookups can be answered without a round trip.
package hydra

// Reserved fields of a generic document.
const (
	// FieldID holds the canonical, dereferenceable identifier (the JSON-LD @id).
	FieldID = "id"

	// FieldOriginID preserves the identifier the origin document was keyed by
	// internally when it differs from the canonical one.
	FieldOriginID = "originId"
)

// Document is the flattened, generic form of a JSON-LD resource. Relation
// fields hold IRI strings (or embedded sub-documents when configured), every
// other field passes through unchanged. A document that originated from the
// API always carries a non-empty FieldID.
type Document map[string]any

// ID returns the canonical identifier of the document, or "" if it has none.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// Transformer converts JSON-LD object graphs to generic documents and feeds
// the embedded-document cache as a side effect.
type Transformer struct {
	cache *DocumentCache
}

// NewTransformer creates a transformer writing embedded relations to cache.
func NewTransformer(cache *DocumentCache) *Transformer {
	return &Transformer{cache: cache}
}

// Transform converts a JSON-LD document into a generic Document.
//
// When clone is set the input is deep-copied first so the caller's value is
// never mutated. When addToCache is set, every inlined to-one or to-many
// relation is stored in the embedded-document cache keyed by its IRI. When
// useEmbedded is set, relation fields keep their inlined bodies instead of
// being collapsed to IRI strings.
//
// A document without an @id field is left structurally unchanged (beyond
// cloning), which makes the transform idempotent on already-flattened input.
func (t *Transformer) Transform(doc map[string]any, clone, addToCache, useEmbedded bool) Document {
	if clone {
		doc = deepCopyMap(doc)
	}

	out := Document(doc)
	if iri, ok := relationIRI(doc); ok {
		if prev, hadID := doc[FieldID]; hadID && prev != iri {
			out[FieldOriginID] = prev
		}
		out[FieldID] = iri
	}

	for key, value := range out {
		switch v := value.(type) {
		case map[string]any:
			iri, ok := relationIRI(v)
			if !ok {
				continue
			}
			if addToCache {
				// The value is already part of the (cloned) tree, so the
				// recursive call neither clones nor caches deeper levels.
				t.cache.Put(iri, t.Transform(v, false, false, useEmbedded))
			}
			if !useEmbedded {
				out[key] = iri
			}

		case []any:
			if len(v) == 0 {
				continue
			}
			first, ok := v[0].(map[string]any)
			if !ok {
				continue
			}
			if _, ok := relationIRI(first); !ok {
				continue
			}
			flattened := make([]any, len(v))
			for i, item := range v {
				element, ok := item.(map[string]any)
				if !ok {
					flattened[i] = item
					continue
				}
				iri, ok := relationIRI(element)
				if !ok {
					flattened[i] = item
					continue
				}
				if addToCache {
					t.cache.Put(iri, t.Transform(element, false, false, useEmbedded))
				}
				if useEmbedded {
					flattened[i] = element
				} else {
					flattened[i] = iri
				}
			}
			out[key] = flattened
		}
	}

	return out
}

// relationIRI reports whether a keyed structure is a JSON-LD document and
// returns its @id locator.
func relationIRI(m map[string]any) (string, bool) {
	iri, ok := m["@id"].(string)
	if !ok || iri == "" {
		return "", false
	}
	return iri, true
}

// deepCopyMap produces a structurally independent copy of a decoded JSON
// tree. Scalar leaves are shared, which is safe because they are immutable.
func deepCopyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return deepCopyMap(tv)
	case []any:
		cp := make([]any, len(tv))
		for i, item := range tv {
			cp[i] = deepCopyValue(item)
		}
		return cp
	default:
		return v
	}
}
