package hydra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"
)

// Options configures a Provider. Entrypoint is the only required field.
type Options struct {
	// Entrypoint is the base locator all resource and item locators are
	// resolved against. Required.
	Entrypoint string

	// Token is a bearer credential forwarded on every API request.
	Token string

	// Transport overrides the HTTP round-trip function. When nil a default
	// transport is built from Token, HTTPClient and RateLimit.
	Transport DoFunc

	// Parser retrieves the API documentation for Introspect and schema-driven
	// field transforms. When nil, operations proceed with the documents
	// unmodified and Introspect returns an error.
	Parser SchemaParser

	// MercureHub, MercureToken and MercureTopicBase override the discovered
	// hub, the stream credential, and the base relative topics are resolved
	// against (the entry point when empty).
	MercureHub       string
	MercureToken     string
	MercureTopicBase string

	// UseEmbedded keeps inlined relations as embedded documents instead of
	// collapsing them to IRI references.
	UseEmbedded bool

	// DisableCache turns off the embedded-document cache.
	DisableCache bool

	// RateLimit caps outgoing requests per second on the default transport.
	// 0 means unlimited. Ignored when Transport is set.
	RateLimit float64

	// HTTPClient is used by the default transport and the Mercure streams.
	HTTPClient *http.Client

	Logger hclog.Logger
}

// Provider composes the document transformer, filter compiler, request
// builder, response decoder and subscription manager into the generic CRUD
// interface. It is safe for concurrent use; the embedded-document cache and
// the Mercure hub state are the only shared mutable state and both use
// last-writer-wins semantics.
type Provider struct {
	entrypoint  *url.URL
	do          DoFunc
	parser      SchemaParser
	cache       *DocumentCache
	transformer *Transformer
	builder     *RequestBuilder
	decoder     *ResponseDecoder
	mercure     *SubscriptionManager
	logger      hclog.Logger

	mu            sync.Mutex
	introspection *Introspection
}

// New creates a Provider from options.
func New(opts Options) (*Provider, error) {
	if opts.Entrypoint == "" {
		return nil, fmt.Errorf("entrypoint is required")
	}
	entrypoint, err := url.Parse(opts.Entrypoint)
	if err != nil {
		return nil, fmt.Errorf("invalid entrypoint %q: %w", opts.Entrypoint, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	cache := NewDocumentCache()
	if opts.DisableCache {
		cache.Disable()
	}
	transformer := NewTransformer(cache)

	topicBase := entrypoint
	if opts.MercureTopicBase != "" {
		tb, err := url.Parse(opts.MercureTopicBase)
		if err != nil {
			return nil, fmt.Errorf("invalid mercure topic base %q: %w", opts.MercureTopicBase, err)
		}
		topicBase = tb
	}
	mercure := NewSubscriptionManager(transformer, SubscriptionOptions{
		Hub:       opts.MercureHub,
		Token:     opts.MercureToken,
		TopicBase: topicBase,
		Client:    opts.HTTPClient,
		Logger:    logger.Named("mercure"),
	})

	do := opts.Transport
	if do == nil {
		var limiter *rate.Limiter
		if opts.RateLimit > 0 {
			limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
		}
		do = NewTransport(TransportOptions{
			Client:  opts.HTTPClient,
			Token:   opts.Token,
			Limiter: limiter,
			Logger:  logger.Named("transport"),
		})
	}

	return &Provider{
		entrypoint:  entrypoint,
		do:          do,
		parser:      opts.Parser,
		cache:       cache,
		transformer: transformer,
		builder:     NewRequestBuilder(entrypoint),
		decoder:     NewResponseDecoder(transformer, mercure, opts.UseEmbedded, opts.DisableCache),
		mercure:     mercure,
		logger:      logger,
	}, nil
}

// Cache exposes the embedded-document cache, mainly for tests and callers
// that want to pre-warm it.
func (p *Provider) Cache() *DocumentCache { return p.cache }

// Introspect parses the API documentation. The result is memoized after the
// first success; failures are wrapped once with the underlying cause and a
// cross-origin configuration hint, and are never retried automatically.
func (p *Provider) Introspect(ctx context.Context) (*Introspection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.introspection != nil {
		return p.introspection, nil
	}
	if p.parser == nil {
		return nil, fmt.Errorf("no schema parser configured for %s", p.entrypoint)
	}
	introspection, err := p.parser(ctx, p.entrypoint.String())
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("unable to retrieve API documentation from %s (status %d): %w; also check that CORS is configured on the API for this origin", p.entrypoint, apiErr.Code, err)
		}
		return nil, fmt.Errorf("unable to retrieve API documentation from %s: %w; also check that CORS is configured on the API for this origin", p.entrypoint, err)
	}
	p.introspection = introspection
	return introspection, nil
}

// resourceSchema resolves the schema of one resource. A resource missing
// from the schema — or a provider with no parser at all — degrades
// gracefully to a nil schema, which leaves documents unmodified. A parser
// that is configured but fails is a hard error.
func (p *Provider) resourceSchema(ctx context.Context, resource string) (*Resource, error) {
	if p.parser == nil {
		return nil, nil
	}
	introspection, err := p.Introspect(ctx)
	if err != nil {
		return nil, err
	}
	schema, _ := introspection.Schema.Resource(resource)
	return schema, nil
}

// GetList fetches one page of a resource collection.
func (p *Provider) GetList(ctx context.Context, resource string, params Params) (*ListResult, error) {
	return p.list(ctx, OpGetList, resource, params)
}

// GetManyReference fetches the documents referencing params.ID through the
// params.Target field.
func (p *Provider) GetManyReference(ctx context.Context, resource string, params Params) (*ListResult, error) {
	return p.list(ctx, OpGetManyReference, resource, params)
}

func (p *Provider) list(ctx context.Context, op Operation, resource string, params Params) (*ListResult, error) {
	p.logOperation(op, resource)
	schema, err := p.resourceSchema(ctx, resource)
	if err != nil {
		return nil, err
	}
	req, err := p.builder.Build(ctx, op, resource, schema, params)
	if err != nil {
		return nil, err
	}
	resp, err := p.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.decoder.DecodeList(ctx, schema, resp)
}

// GetOne fetches a single document by its identifier.
func (p *Provider) GetOne(ctx context.Context, resource, id string) (Document, error) {
	return p.item(ctx, OpGetOne, resource, Params{ID: id})
}

// Create posts a new document and returns the created result.
func (p *Provider) Create(ctx context.Context, resource string, data map[string]any) (Document, error) {
	return p.item(ctx, OpCreate, resource, Params{Data: data})
}

// Update replaces a document and returns the updated result. A payload with
// a file field is sent as a multipart POST.
func (p *Provider) Update(ctx context.Context, resource, id string, data map[string]any) (Document, error) {
	return p.item(ctx, OpUpdate, resource, Params{ID: id, Data: data})
}

func (p *Provider) item(ctx context.Context, op Operation, resource string, params Params) (Document, error) {
	p.logOperation(op, resource)
	schema, err := p.resourceSchema(ctx, resource)
	if err != nil {
		return nil, err
	}
	req, err := p.builder.Build(ctx, op, resource, schema, params)
	if err != nil {
		return nil, err
	}
	resp, err := p.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.decoder.DecodeItem(ctx, schema, resp)
}

// Delete removes a document. The result carries only the document id.
func (p *Provider) Delete(ctx context.Context, resource, id string) (Document, error) {
	p.logOperation(OpDelete, resource)
	schema, err := p.resourceSchema(ctx, resource)
	if err != nil {
		return nil, err
	}
	params := Params{ID: id}
	req, err := p.builder.Build(ctx, OpDelete, resource, schema, params)
	if err != nil {
		return nil, err
	}
	resp, err := p.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.decoder.DecodeDelete(params, resp), nil
}

// GetMany resolves several documents by identifier. When the resource
// schema exposes an `id` search filter this is a single filtered list call;
// otherwise each id is fetched individually — concurrently and with no
// concurrency cap — consulting the embedded-document cache first.
func (p *Provider) GetMany(ctx context.Context, resource string, ids []string) ([]Document, error) {
	schema, err := p.resourceSchema(ctx, resource)
	if err != nil {
		return nil, err
	}

	if schema.HasIDSearchFilter() {
		result, err := p.GetList(ctx, resource, Params{Filter: map[string]any{"id": ids}})
		if err != nil {
			return nil, err
		}
		return result.Data, nil
	}

	docs := make([]Document, len(ids))
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		if doc, ok := p.cache.Get(id); ok {
			docs[i] = doc
			continue
		}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			docs[i], errs[i] = p.GetOne(ctx, resource, id)
		}(i, id)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// UpdateMany applies the same payload to several documents and returns the
// ids that were updated.
func (p *Provider) UpdateMany(ctx context.Context, resource string, ids []string, data map[string]any) ([]string, error) {
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = p.Update(ctx, resource, id, data)
		}(i, id)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// DeleteMany removes several documents and returns the ids that were deleted.
func (p *Provider) DeleteMany(ctx context.Context, resource string, ids []string) ([]string, error) {
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = p.Delete(ctx, resource, id)
		}(i, id)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Subscribe registers a callback for real-time updates on the given topics.
// Streams open as soon as a Mercure hub is known — immediately when
// configured, or retroactively once any response reveals one.
func (p *Provider) Subscribe(topics []string, callback SubscriptionCallback) {
	for _, topic := range topics {
		p.mercure.Subscribe(topic, callback)
	}
}

// Unsubscribe drops one subscriber from each of the given topics. The
// resource name is informational only.
func (p *Provider) Unsubscribe(resource string, topics []string) {
	p.logger.Debug("unsubscribe", "resource", resource, "topics", len(topics))
	for _, topic := range topics {
		p.mercure.Unsubscribe(topic)
	}
}

// Close tears down every open Mercure stream.
func (p *Provider) Close() {
	p.mercure.Close()
}

func (p *Provider) logOperation(op Operation, resource string) {
	if !p.logger.IsDebug() {
		return
	}
	p.logger.Debug("operation", "op", string(op), "resource", resource, "request_id", uuid.New().String())
}
