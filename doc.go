/*
Package advsearch is the backend of an advanced search panel for a cloud-storage web application. It keeps a structured filter form and a free-form query box in sync by translating between them, runs the resulting queries against the storage backend's WebDAV search, and stores named queries for reuse.

# What is KQL?

The storage backend's search index accepts a small keyword query language: clauses of the form field:value or field>=value, joined by AND, with parenthesized groups for ranges and OR inside tag groups. The kql subpackage owns that grammar. It serializes a kql.FilterState into a query string and parses a query string back into a FilterState, reporting anything it had to drop as a kql.Warning.

# Features

- Bidirectional translation driven by a single field table (kql.Fields).
- Paged WebDAV REPORT search with retries (subpackage dav).
- Saved queries in a memory-mapped record file or in PostgreSQL.
- A JSON HTTP API and a websocket for per-keystroke translation.
- Optional bearer-token authentication.

# Usage

## Translating

	filters := kql.FilterState{
	    Standard: kql.StandardFilters{
	        Type:      kql.TypeFolder,
	        SizeRange: &kql.IntRange{Min: kql.Int64(100), Max: kql.Int64(1000)},
	    },
	}

	query := kql.Serialize(filters) // Type:2 AND (size>=100 AND size<=1000)

	parsed, warnings := kql.NewParser(log).Parse(query)

## Saving Queries

	store, err := OpenQueryStore(cfg, log)
	saved, err := store.SaveQuery(ctx, NewSavedQuery("big folders", query))

## Serving

	err := RunServer(ctx, cfg, log)

The routes are:

	POST   /api/v1/query/serialize   FilterState -> {"query"}
	POST   /api/v1/query/parse       {"query"} -> {"filters", "warnings"}
	POST   /api/v1/search            {"filters" or "query", "limit", "offset"}
	GET    /api/v1/queries           list saved queries
	POST   /api/v1/queries           {"name", "query" or "filters"}
	GET    /api/v1/queries/{id}
	DELETE /api/v1/queries/{id}
	GET    /api/v1/fields            the field table
	GET    /api/v1/live              websocket
	GET    /healthz

## Dumping the Query File

To inspect a saved query file, use the DumpQueryFile function:

	DumpQueryFile("data/queries.dat", os.Stdout)
*/
package advsearch
