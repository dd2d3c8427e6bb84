package hydra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBookstoreAPI serves a small Hydra API with a books collection, enough
// for end-to-end provider round trips.
func newBookstoreAPI(t *testing.T) *httptest.Server {
	t.Helper()

	e := echo.New()
	e.HideBanner = true

	e.GET("/books", func(c echo.Context) error {
		c.Response().Header().Set("Link", `<https://hub.example.com/.well-known/mercure>; rel="mercure"`)
		return c.JSON(http.StatusOK, map[string]any{
			"@id":   "/books",
			"@type": "hydra:Collection",
			"hydra:member": []any{
				map[string]any{
					"@id":    "/books/1",
					"title":  "Moby-Dick",
					"author": map[string]any{"@id": "/authors/7", "name": "Melville"},
				},
				map[string]any{"@id": "/books/2", "title": "Omoo"},
			},
			"hydra:totalItems": 2,
		})
	})
	e.GET("/books/:id", func(c echo.Context) error {
		if c.Param("id") == "404" {
			return c.JSON(http.StatusNotFound, map[string]any{
				"hydra:title":       "An error occurred",
				"hydra:description": "Not Found",
			})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"@id":   "/books/" + c.Param("id"),
			"title": "Moby-Dick",
		})
	})
	e.POST("/books", func(c echo.Context) error {
		// The payload arrives as application/ld+json, which the default
		// binder does not accept.
		var payload map[string]any
		if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
			return err
		}
		payload["@id"] = "/books/3"
		return c.JSON(http.StatusCreated, payload)
	})
	e.PUT("/books/:id", func(c echo.Context) error {
		var payload map[string]any
		if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
			return err
		}
		payload["@id"] = "/books/" + c.Param("id")
		return c.JSON(http.StatusOK, payload)
	})
	e.DELETE("/books/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server
}

func newBookstoreProvider(t *testing.T, server *httptest.Server) *Provider {
	t.Helper()
	provider, err := New(Options{
		Entrypoint: server.URL,
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	t.Cleanup(provider.Close)
	return provider
}

func TestNewRequiresEntrypoint(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestProviderGetList(t *testing.T) {
	server := newBookstoreAPI(t)
	provider := newBookstoreProvider(t, server)

	result, err := provider.GetList(context.Background(), "books", Params{
		Pagination: &Pagination{Page: 1, PerPage: 10},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	require.Len(t, result.Data, 2)
	assert.Equal(t, "/books/1", result.Data[0].ID())
	assert.Equal(t, "/authors/7", result.Data[0]["author"])

	// The embedded author document was cached while flattening.
	author, ok := provider.Cache().Get("/authors/7")
	require.True(t, ok)
	assert.Equal(t, "Melville", author["name"])
}

func TestProviderGetOne(t *testing.T) {
	server := newBookstoreAPI(t)
	provider := newBookstoreProvider(t, server)

	doc, err := provider.GetOne(context.Background(), "books", "/books/1")
	require.NoError(t, err)
	assert.Equal(t, "/books/1", doc.ID())
	assert.Equal(t, "Moby-Dick", doc["title"])
}

func TestProviderCreate(t *testing.T) {
	server := newBookstoreAPI(t)
	provider := newBookstoreProvider(t, server)

	doc, err := provider.Create(context.Background(), "books", map[string]any{"title": "Typee"})
	require.NoError(t, err)
	assert.Equal(t, "/books/3", doc.ID())
	assert.Equal(t, "Typee", doc["title"])
}

func TestProviderUpdate(t *testing.T) {
	server := newBookstoreAPI(t)
	provider := newBookstoreProvider(t, server)

	doc, err := provider.Update(context.Background(), "books", "/books/2", map[string]any{"title": "Omoo, revised"})
	require.NoError(t, err)
	assert.Equal(t, "/books/2", doc.ID())
	assert.Equal(t, "Omoo, revised", doc["title"])
}

func TestProviderDelete(t *testing.T) {
	server := newBookstoreAPI(t)
	provider := newBookstoreProvider(t, server)

	doc, err := provider.Delete(context.Background(), "books", "/books/2")
	require.NoError(t, err)
	assert.Equal(t, Document{FieldID: "/books/2"}, doc)
}

func TestProviderMapsErrorResponses(t *testing.T) {
	server := newBookstoreAPI(t)
	provider := newBookstoreProvider(t, server)

	_, err := provider.GetOne(context.Background(), "books", "/books/404")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
	assert.Equal(t, "An error occurred", apiErr.Message)
	assert.Equal(t, "Not Found", apiErr.Details)
}

// countingTransport records every request it serves and answers from a fixed
// function, bypassing the network entirely.
func countingTransport(count *atomic.Int32, answer func(req *Request) *Response) DoFunc {
	return func(_ context.Context, req *Request) (*Response, error) {
		count.Add(1)
		return answer(req), nil
	}
}

func staticParser(intro *Introspection, calls *atomic.Int32) SchemaParser {
	return func(context.Context, string) (*Introspection, error) {
		if calls != nil {
			calls.Add(1)
		}
		return intro, nil
	}
}

func TestGetManyUsesSingleFilteredRequest(t *testing.T) {
	var requests atomic.Int32
	provider, err := New(Options{
		Entrypoint: "https://example.com/api",
		Parser: staticParser(&Introspection{Schema: &Schema{Resources: []Resource{{
			Name:       "books",
			Parameters: []Parameter{{Variable: "id"}},
		}}}}, nil),
		Transport: countingTransport(&requests, func(req *Request) *Response {
			return &Response{
				Status: http.StatusOK,
				Header: make(http.Header),
				JSON: map[string]any{
					"hydra:member": []any{
						map[string]any{"@id": "/books/1"},
						map[string]any{"@id": "/books/2"},
					},
					"hydra:totalItems": float64(2),
				},
			}
		}),
	})
	require.NoError(t, err)
	defer provider.Close()

	docs, err := provider.GetMany(context.Background(), "books", []string{"/books/1", "/books/2"})
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, int32(1), requests.Load(), "an id search filter must collapse GetMany into one request")
}

func TestGetManyFallsBackToPerDocumentFetches(t *testing.T) {
	var requests atomic.Int32
	provider, err := New(Options{
		Entrypoint: "https://example.com/api",
		Transport: countingTransport(&requests, func(req *Request) *Response {
			return &Response{
				Status: http.StatusOK,
				Header: make(http.Header),
				JSON:   map[string]any{"@id": req.URL.Path},
			}
		}),
	})
	require.NoError(t, err)
	defer provider.Close()

	// One of the documents is already in the cache and must not be fetched.
	provider.Cache().Put("/books/1", Document{FieldID: "/books/1", "title": "cached"})

	docs, err := provider.GetMany(context.Background(), "books", []string{"/books/1", "/books/2", "/books/3"})
	require.NoError(t, err)

	require.Len(t, docs, 3)
	assert.Equal(t, "cached", docs[0]["title"])
	assert.Equal(t, "/books/2", docs[1].ID())
	assert.Equal(t, "/books/3", docs[2].ID())
	assert.Equal(t, int32(2), requests.Load(), "cached documents must not hit the network")
}

func TestUpdateManyAndDeleteMany(t *testing.T) {
	var requests atomic.Int32
	provider, err := New(Options{
		Entrypoint: "https://example.com/api",
		Transport: countingTransport(&requests, func(req *Request) *Response {
			return &Response{
				Status: http.StatusOK,
				Header: make(http.Header),
				JSON:   map[string]any{"@id": req.URL.Path},
			}
		}),
	})
	require.NoError(t, err)
	defer provider.Close()

	ids := []string{"/books/1", "/books/2"}

	updated, err := provider.UpdateMany(context.Background(), "books", ids, map[string]any{"read": true})
	require.NoError(t, err)
	assert.Equal(t, ids, updated)

	deleted, err := provider.DeleteMany(context.Background(), "books", ids)
	require.NoError(t, err)
	assert.Equal(t, ids, deleted)
	assert.Equal(t, int32(4), requests.Load())
}

func TestIntrospectIsMemoized(t *testing.T) {
	var calls atomic.Int32
	provider, err := New(Options{
		Entrypoint: "https://example.com/api",
		Parser:     staticParser(&Introspection{Schema: &Schema{}}, &calls),
	})
	require.NoError(t, err)
	defer provider.Close()

	for i := 0; i < 3; i++ {
		_, err := provider.Introspect(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestIntrospectFailureCarriesHint(t *testing.T) {
	provider, err := New(Options{
		Entrypoint: "https://example.com/api",
		Parser: func(context.Context, string) (*Introspection, error) {
			return nil, fmt.Errorf("documentation request: %w", NewAPIError(http.StatusForbidden, "Forbidden", ""))
		},
	})
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.Introspect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "CORS")

	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestIntrospectWithoutParserFails(t *testing.T) {
	provider, err := New(Options{Entrypoint: "https://example.com/api"})
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.Introspect(context.Background())
	require.Error(t, err)
}

func TestProviderDiscoversHubFromResponses(t *testing.T) {
	server := newBookstoreAPI(t)
	provider := newBookstoreProvider(t, server)

	require.False(t, provider.mercure.HubKnown())
	_, err := provider.GetList(context.Background(), "books", Params{})
	require.NoError(t, err)
	assert.True(t, provider.mercure.HubKnown())
}
