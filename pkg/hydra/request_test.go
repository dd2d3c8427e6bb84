package hydra

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBuilder(t *testing.T) *RequestBuilder {
	t.Helper()
	entrypoint, err := url.Parse("https://example.com/api")
	require.NoError(t, err)
	return NewRequestBuilder(entrypoint)
}

func TestBuildGetList(t *testing.T) {
	builder := testBuilder(t)

	req, err := builder.Build(context.Background(), OpGetList, "books", nil, Params{
		Pagination:   &Pagination{Page: 2, PerPage: 30},
		Sort:         &Sort{Field: "title", Order: "asc"},
		Filter:       map[string]any{"author": map[string]any{"name": "melville"}},
		SearchParams: map[string]string{"groups[]": "admin"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api/books", req.URL.Path)

	query := req.URL.Query()
	assert.Equal(t, "asc", query.Get("order[title]"))
	assert.Equal(t, "2", query.Get("page"))
	assert.Equal(t, "30", query.Get("itemsPerPage"))
	assert.Equal(t, "melville", query.Get("author.name"))
	assert.Equal(t, "admin", query.Get("groups[]"))
}

func TestBuildGetManyReference(t *testing.T) {
	builder := testBuilder(t)

	req, err := builder.Build(context.Background(), OpGetManyReference, "reviews", nil, Params{
		ID:     "/api/books/1",
		Target: "book",
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/reviews", req.URL.Path)
	assert.Equal(t, "/api/books/1", req.URL.Query().Get("book"))
}

func TestBuildGetOneResolvesItemLocator(t *testing.T) {
	builder := testBuilder(t)

	req, err := builder.Build(context.Background(), OpGetOne, "books", nil, Params{ID: "/api/books/1"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "https://example.com/api/books/1", req.URL.String())
}

func TestBuildGetOneRequiresID(t *testing.T) {
	builder := testBuilder(t)

	_, err := builder.Build(context.Background(), OpGetOne, "books", nil, Params{})
	assert.Error(t, err)
}

func TestBuildCreateEncodesJSONLD(t *testing.T) {
	builder := testBuilder(t)

	req, err := builder.Build(context.Background(), OpCreate, "books", nil, Params{
		Data: map[string]any{"title": "Typee"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/books", req.URL.Path)
	assert.Equal(t, "application/ld+json", req.Header.Get("Content-Type"))

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "Typee", payload["title"])
}

func TestBuildDelete(t *testing.T) {
	builder := testBuilder(t)

	req, err := builder.Build(context.Background(), OpDelete, "books", nil, Params{ID: "/api/books/1"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Nil(t, req.Body)
}

func TestBuildUpdateUsesPut(t *testing.T) {
	builder := testBuilder(t)

	req, err := builder.Build(context.Background(), OpUpdate, "books", nil, Params{
		ID:   "/api/books/1",
		Data: map[string]any{"title": "Omoo"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "https://example.com/api/books/1", req.URL.String())
}

func TestBuildUpdateWithFileSwitchesToMultipartPost(t *testing.T) {
	builder := testBuilder(t)

	req, err := builder.Build(context.Background(), OpUpdate, "books", nil, Params{
		ID: "/api/books/1",
		Data: map[string]any{
			"title": "Omoo",
			"cover": map[string]any{
				"rawFile": &File{Filename: "cover.png", Reader: strings.NewReader("png-bytes")},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)

	mediaType, mediaParams, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)

	reader := multipart.NewReader(req.Body, mediaParams["boundary"])
	parts := map[string]string{}
	filenames := map[string]string{}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(part)
		require.NoError(t, err)
		parts[part.FormName()] = string(content)
		if part.FileName() != "" {
			filenames[part.FormName()] = part.FileName()
		}
	}

	// The structure holding the file emits only the file itself.
	assert.Equal(t, "png-bytes", parts["cover"])
	assert.Equal(t, "cover.png", filenames["cover"])
	assert.Equal(t, "Omoo", parts["title"])
}

func TestBuildUpdateHonorsFileFieldSignal(t *testing.T) {
	builder := testBuilder(t)

	req, err := builder.Build(context.Background(), OpUpdate, "books", nil, Params{
		ID: "/api/books/1",
		Data: map[string]any{
			"title":            "Omoo",
			"extraInformation": map[string]any{"hasFileField": true},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Contains(t, req.Header.Get("Content-Type"), "multipart/form-data")

	// The side channel never reaches the wire.
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "extraInformation")
}

func TestBuildUnsupportedOperation(t *testing.T) {
	builder := testBuilder(t)

	_, err := builder.Build(context.Background(), Operation("explode"), "books", nil, Params{})
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

// centsNormalizer converts a decimal price into integer cents on the wire.
type centsNormalizer struct{}

func (centsNormalizer) NormalizeData(_ context.Context, value any) (any, error) {
	price, _ := value.(float64)
	return int(price * 100), nil
}

func (centsNormalizer) DenormalizeData(_ context.Context, value any) (any, error) {
	cents, _ := value.(float64)
	return cents / 100, nil
}

func TestBuildCreateNormalizesFields(t *testing.T) {
	builder := testBuilder(t)
	schema := &Resource{
		Name:   "books",
		Fields: []Field{{Name: "price", Transform: centsNormalizer{}}},
	}

	req, err := builder.Build(context.Background(), OpCreate, "books", schema, Params{
		Data: map[string]any{"title": "Typee", "price": 19.5},
	})
	require.NoError(t, err)

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, float64(1950), payload["price"])
	assert.Equal(t, "Typee", payload["title"])
}
