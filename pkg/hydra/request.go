package hydra

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Operation identifies one of the generic CRUD operations the provider maps
// onto HTTP requests.
type Operation string

const (
	OpGetList          Operation = "getList"
	OpGetOne           Operation = "getOne"
	OpGetManyReference Operation = "getManyReference"
	OpCreate           Operation = "create"
	OpUpdate           Operation = "update"
	OpDelete           Operation = "delete"
)

// Pagination selects one page of a collection.
type Pagination struct {
	Page    int
	PerPage int
}

// Sort orders a collection by one field. Order is "asc" or "desc".
type Sort struct {
	Field string
	Order string
}

// Params carries the operation parameters of one provider call. Only the
// fields relevant to the operation need to be set.
type Params struct {
	// ID is the canonical identifier of the target document (item operations)
	// or the reference id (GetManyReference).
	ID string

	// Data is the payload for create and update operations.
	Data map[string]any

	// Pagination, Sort and Filter shape list operations.
	Pagination *Pagination
	Sort       *Sort
	Filter     map[string]any

	// SearchParams are extra query parameters merged onto every request URL.
	SearchParams map[string]string

	// Target names the filter parameter a GetManyReference call sets to ID.
	Target string
}

// File is a file-like payload value. A field whose value is, or is a keyed
// structure containing, a *File switches the body encoder to multipart form
// encoding.
type File struct {
	Filename string
	Reader   io.Reader
}

// Request is the fully resolved HTTP request for one operation. It is
// produced and consumed within a single provider call.
type Request struct {
	URL    *url.URL
	Method string
	Body   io.Reader
	Header http.Header
}

// extraInformationField is a conventional side channel inside the payload
// that signals file-upload semantics to the body encoder. It is stripped
// before encoding.
const extraInformationField = "extraInformation"

// RequestBuilder maps an operation, a resource name and call parameters onto
// a concrete HTTP request against the configured entry point.
type RequestBuilder struct {
	entrypoint *url.URL
}

// NewRequestBuilder creates a builder resolving against the entry point.
func NewRequestBuilder(entrypoint *url.URL) *RequestBuilder {
	return &RequestBuilder{entrypoint: entrypoint}
}

// Build constructs the request for one operation. The resource schema may be
// nil, in which case field normalization is skipped and the payload is
// encoded unmodified.
func (b *RequestBuilder) Build(ctx context.Context, op Operation, resource string, schema *Resource, params Params) (*Request, error) {
	collectionURL := b.collectionURL(resource, params.SearchParams)

	data, hasFileField := extractExtraInformation(params.Data)

	switch op {
	case OpCreate:
		body, contentType, err := b.encodeBody(ctx, schema, data, hasFileField)
		if err != nil {
			return nil, err
		}
		return newRequest(http.MethodPost, collectionURL, body, contentType), nil

	case OpDelete:
		itemURL, err := b.itemURL(params)
		if err != nil {
			return nil, err
		}
		return newRequest(http.MethodDelete, itemURL, nil, ""), nil

	case OpGetList, OpGetManyReference:
		query := collectionURL.Query()
		if params.Sort != nil && params.Sort.Field != "" {
			query.Set(fmt.Sprintf("order[%s]", params.Sort.Field), params.Sort.Order)
		}
		if params.Pagination != nil {
			query.Set("page", strconv.Itoa(params.Pagination.Page))
			query.Set("itemsPerPage", strconv.Itoa(params.Pagination.PerPage))
		}
		CompileFilter(params.Filter, query)
		if op == OpGetManyReference && params.Target != "" {
			query.Set(params.Target, params.ID)
		}
		collectionURL.RawQuery = query.Encode()
		return newRequest(http.MethodGet, collectionURL, nil, ""), nil

	case OpGetOne:
		itemURL, err := b.itemURL(params)
		if err != nil {
			return nil, err
		}
		return newRequest(http.MethodGet, itemURL, nil, ""), nil

	case OpUpdate:
		itemURL, err := b.itemURL(params)
		if err != nil {
			return nil, err
		}
		body, contentType, err := b.encodeBody(ctx, schema, data, hasFileField)
		if err != nil {
			return nil, err
		}
		// Multipart bodies go through POST; PHP frameworks do not populate
		// form uploads on PUT.
		method := http.MethodPut
		if hasFileField || containsFileValue(data) {
			method = http.MethodPost
		}
		return newRequest(method, itemURL, body, contentType), nil

	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedOperation, op)
	}
}

func newRequest(method string, u *url.URL, body io.Reader, contentType string) *Request {
	header := make(http.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &Request{URL: u, Method: method, Body: body, Header: header}
}

// collectionURL resolves entrypoint/resource and merges extra search params.
func (b *RequestBuilder) collectionURL(resource string, searchParams map[string]string) *url.URL {
	u := *b.entrypoint
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(resource, "/")
	mergeSearchParams(&u, searchParams)
	return &u
}

// itemURL resolves the document IRI against the entry point, so both absolute
// IRIs and path-only locators ("/books/1") work.
func (b *RequestBuilder) itemURL(params Params) (*url.URL, error) {
	if params.ID == "" {
		return nil, fmt.Errorf("item operation requires a document id")
	}
	ref, err := url.Parse(params.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid document id %q: %w", params.ID, err)
	}
	u := b.entrypoint.ResolveReference(ref)
	mergeSearchParams(u, params.SearchParams)
	return u, nil
}

func mergeSearchParams(u *url.URL, searchParams map[string]string) {
	if len(searchParams) == 0 {
		return
	}
	query := u.Query()
	for k, v := range searchParams {
		query.Set(k, v)
	}
	u.RawQuery = query.Encode()
}

// extractExtraInformation strips the extraInformation side channel from the
// payload and reports whether it signals a file field. The caller's map is
// never mutated.
func extractExtraInformation(data map[string]any) (map[string]any, bool) {
	if data == nil {
		return nil, false
	}
	extra, ok := data[extraInformationField].(map[string]any)
	if !ok {
		return data, false
	}
	hasFileField, _ := extra["hasFileField"].(bool)
	out := make(map[string]any, len(data))
	for k, v := range data {
		if k == extraInformationField {
			continue
		}
		out[k] = v
	}
	return out, hasFileField
}

// encodeBody normalizes the payload through the resource schema and encodes
// it as JSON-LD text, or as a multipart form when a file value is present or
// signaled.
func (b *RequestBuilder) encodeBody(ctx context.Context, schema *Resource, data map[string]any, hasFileField bool) (io.Reader, string, error) {
	normalized, err := normalizeFields(ctx, schema, data)
	if err != nil {
		return nil, "", err
	}

	if !hasFileField && !containsFileValue(normalized) {
		encoded, err := json.Marshal(normalized)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return bytes.NewReader(encoded), "application/ld+json", nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range normalized {
		if err := appendFormValue(writer, key, value); err != nil {
			return nil, "", fmt.Errorf("encode multipart field %q: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func appendFormValue(writer *multipart.Writer, key string, value any) error {
	if file, ok := value.(*File); ok {
		return appendFormFile(writer, key, file)
	}
	// A keyed structure holding a file emits only that file.
	if m, ok := value.(map[string]any); ok {
		if file := firstFileValue(m); file != nil {
			return appendFormFile(writer, key, file)
		}
	}
	if tm, ok := value.(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		if err != nil {
			return err
		}
		return writer.WriteField(key, string(text))
	}
	switch value.(type) {
	case map[string]any, []any, []string:
		encoded, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return writer.WriteField(key, string(encoded))
	default:
		return writer.WriteField(key, queryValue(value))
	}
}

func appendFormFile(writer *multipart.Writer, key string, file *File) error {
	part, err := writer.CreateFormFile(key, file.Filename)
	if err != nil {
		return err
	}
	if file.Reader == nil {
		return nil
	}
	_, err = io.Copy(part, file.Reader)
	return err
}

// containsFileValue reports whether any top-level field is a file, or a keyed
// structure holding one.
func containsFileValue(data map[string]any) bool {
	for _, value := range data {
		if _, ok := value.(*File); ok {
			return true
		}
		if m, ok := value.(map[string]any); ok && firstFileValue(m) != nil {
			return true
		}
	}
	return false
}

func firstFileValue(m map[string]any) *File {
	for _, v := range m {
		if file, ok := v.(*File); ok {
			return file
		}
	}
	return nil
}
