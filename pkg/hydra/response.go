package hydra

import (
	"context"
	"fmt"
	"strings"
)

// Sentinel totals for list results whose envelope does not state an exact
// count. They preserve the three-way distinction between "last page", "more
// pages with unknown count" and "no pagination information at all".
const (
	// TotalLastPage means the envelope carried view metadata without a next
	// link: this is the last page.
	TotalLastPage = -1

	// TotalMorePages means a next-page link exists but the exact count is
	// unknown.
	TotalMorePages = -2

	// TotalUnknown means the envelope carried neither a total nor view
	// metadata.
	TotalUnknown = -3
)

// ListResult is the outcome of a list operation.
type ListResult struct {
	Data  []Document
	Total int
}

// ResponseDecoder reconstructs generic results from Hydra response envelopes
// and drives hub discovery as a side effect of every decoded response.
type ResponseDecoder struct {
	transformer *Transformer
	mercure     *SubscriptionManager
	useEmbedded bool
	addToCache  bool
}

// NewResponseDecoder creates a decoder. mercure may be nil when real-time
// notifications are not used.
func NewResponseDecoder(transformer *Transformer, mercure *SubscriptionManager, useEmbedded, disableCache bool) *ResponseDecoder {
	return &ResponseDecoder{
		transformer: transformer,
		mercure:     mercure,
		useEmbedded: useEmbedded,
		addToCache:  !disableCache,
	}
}

// DecodeList reconstructs a list result from a Hydra collection envelope.
func (d *ResponseDecoder) DecodeList(ctx context.Context, resource *Resource, resp *Response) (*ListResult, error) {
	d.discoverHub(resp)

	envelope, ok := resp.JSON.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("hydra collection response is not a JSON object")
	}

	members, _ := hydraValue(envelope, "member").([]any)
	docs := make([]Document, 0, len(members))
	for _, member := range members {
		raw, ok := member.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("hydra collection member is not a JSON object")
		}
		doc := d.transformer.Transform(raw, true, d.addToCache, d.useEmbedded)
		doc, err := denormalizeFields(ctx, resource, doc)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return &ListResult{Data: docs, Total: decodeTotal(envelope)}, nil
}

// DecodeItem reconstructs a single-document result (read-one, create, update).
func (d *ResponseDecoder) DecodeItem(ctx context.Context, resource *Resource, resp *Response) (Document, error) {
	d.discoverHub(resp)

	raw, ok := resp.JSON.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("hydra item response is not a JSON object")
	}
	doc := d.transformer.Transform(raw, true, d.addToCache, d.useEmbedded)
	return denormalizeFields(ctx, resource, doc)
}

// DecodeDelete produces the result of a delete operation: the document id,
// with no further network-derived data. The response is still inspected for
// hub discovery.
func (d *ResponseDecoder) DecodeDelete(params Params, resp *Response) Document {
	if resp != nil {
		d.discoverHub(resp)
	}
	return Document{FieldID: params.ID}
}

// decodeTotal extracts the exact member count when the envelope states it and
// falls back to the pagination sentinels otherwise.
func decodeTotal(envelope map[string]any) int {
	if total, ok := hydraValue(envelope, "totalItems").(float64); ok {
		return int(total)
	}
	view, ok := hydraValue(envelope, "view").(map[string]any)
	if !ok {
		return TotalUnknown
	}
	if _, ok := hydraValue(view, "next").(string); ok {
		return TotalMorePages
	}
	return TotalLastPage
}

// hydraValue reads an envelope key accepting both the prefixed ("hydra:member")
// and unprefixed ("member") spellings; newer API Platform versions emit the
// latter.
func hydraValue(m map[string]any, key string) any {
	if v, ok := m["hydra:"+key]; ok {
		return v
	}
	return m[key]
}

// discoverHub inspects the response Link headers for a relation tagged
// mercure and, the first time one is found, upgrades pending subscriptions.
// Idempotent: once the hub is known, responses are no longer inspected.
func (d *ResponseDecoder) discoverHub(resp *Response) {
	if d.mercure == nil || d.mercure.HubKnown() {
		return
	}
	hub := extractHubURL(resp.Header.Values("Link"))
	if hub == "" {
		return
	}
	d.mercure.SetHub(hub)
}

// extractHubURL finds the locator of the link whose rel is mercure, or whose
// quoted rel list contains mercure.
func extractHubURL(linkHeaders []string) string {
	for _, header := range linkHeaders {
		for _, link := range splitLinks(header) {
			target, params := parseLink(link)
			if target == "" {
				continue
			}
			rel, ok := params["rel"]
			if !ok {
				continue
			}
			for _, token := range strings.Fields(rel) {
				if token == "mercure" {
					return target
				}
			}
		}
	}
	return ""
}

// splitLinks splits a Link header on commas that separate links, leaving
// commas inside <...> targets and quoted parameters intact.
func splitLinks(header string) []string {
	var links []string
	var depth int
	var quoted bool
	start := 0
	for i, r := range header {
		switch r {
		case '<':
			if !quoted {
				depth++
			}
		case '>':
			if !quoted && depth > 0 {
				depth--
			}
		case '"':
			quoted = !quoted
		case ',':
			if depth == 0 && !quoted {
				links = append(links, header[start:i])
				start = i + 1
			}
		}
	}
	links = append(links, header[start:])
	return links
}

// parseLink parses one `<target>; key="value"; ...` link value.
func parseLink(link string) (string, map[string]string) {
	parts := strings.Split(link, ";")
	target := strings.TrimSpace(parts[0])
	if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
		return "", nil
	}
	target = strings.TrimSuffix(strings.TrimPrefix(target, "<"), ">")

	params := make(map[string]string, len(parts)-1)
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(key))] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return target, params
}
