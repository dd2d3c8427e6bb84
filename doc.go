// Package admin is a generic client for Hydra-powered hypermedia APIs.
//
// # Overview
//
// admin translates a generic CRUD interface into the JSON-LD / Hydra
// conventions of API Platform: list pages, item fetches, creates, updates
// and deletes all become hypermedia requests, and responses come back as
// flat documents whose relations are IRI references.
//
// The module consists of three main components:
//   - Provider: the CRUD facade over a Hydra API (pkg/hydra)
//   - Subscription manager: real-time document updates over Mercure
//   - CLI: the admin binary for scripting and exploration
//
// # Architecture
//
//	┌─────────────────┐
//	│   admin CLI     │
//	│  (Cobra/Viper)  │
//	└────────┬────────┘
//	         │
//	┌────────▼────────┐       ┌─────────────────┐
//	│  Provider       │◄──────┤  Mercure hub    │
//	│  (pkg/hydra)    │       │  (SSE streams)  │
//	└────────┬────────┘       └─────────────────┘
//	         │
//	┌────────▼────────┐
//	│  Hydra API      │
//	│  (JSON-LD)      │
//	└─────────────────┘
//
// # Core Features
//
// Document handling:
//   - Hydra collection members become generic documents
//   - Embedded relations collapse to IRI references and feed a shared cache
//   - Optional schema-driven field normalization on both directions
//
// Requests:
//   - Filter compilation for nested keys, operator suffixes and arrays
//   - Pagination, ordering and extra search parameters
//   - Multipart encoding when a payload carries files
//
// Real-time updates:
//   - Per-topic Mercure event streams
//   - Reference-counted subscriptions sharing one stream per topic
//   - Automatic hub discovery from response Link headers
//
// # Usage
//
// Fetch a collection page:
//
//	admin list books --entrypoint https://demo.api-platform.com
//
// Follow a document in real time:
//
//	admin watch /books/1
//
// As a library:
//
//	provider, err := hydra.New(hydra.Options{
//	    Entrypoint: "https://demo.api-platform.com",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	books, err := provider.GetList(ctx, "books", hydra.Params{
//	    Pagination: &hydra.Pagination{Page: 1, PerPage: 30},
//	})
//
// # Configuration
//
// Configuration comes from config.yaml files, .env files and ADMIN_-prefixed
// environment variables; see internal/config for the recognized keys.
package admin
