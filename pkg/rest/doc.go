// Package rest bridges PostgREST-style HTTP requests to a relational backend.
//
// Every request under the configured path prefix (default /rest/v1/) is
// normalized into a Request, turned into exactly one Envelope and handed to a
// Backend. The backend parses the filter, embedding and ordering syntax and
// answers with a Result; the bridge only shapes the HTTP response around it:
//
//	Header          | Value
//	----------------|------------------------------------------------
//	content-length  | byte length of the body
//	content-type    | application/json unless the backend says otherwise
//	range-unit      | items
//	content-range   | {offset}-{offset+page-1}/{total}, or */{total}, or .../*
//
// Headers returned by the backend are applied last and win over the ones
// above.
//
// Query parameters are passed through untouched, for example:
//
//	?select=OrderID,Customer:Customers(CompanyName)&order=OrderDate.desc
//	?OrderID=eq.10248
//	?offset=20
//
// PostgresBackend executes envelopes with the rest.handle SQL function.
// Errors raised by that function are answered with their own status and a
// {code, message, details, hint} body. Failures of the bridge itself (a
// malformed request, an unreachable database, a missing result row) become a
// 500 with {"error": "Internal Server Error", "details": ...}.
//
// Example usage:
//
//	cfg, err := config.Load("")
//	if err != nil {
//		log.Fatal(err)
//	}
//	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
//	if err != nil {
//		log.Fatal(err)
//	}
//	server := rest.NewServer(cfg, rest.NewPostgresBackend(pool), zap.NewExample())
//	log.Fatal(server.Start(cfg.ListenAddr))
package rest
