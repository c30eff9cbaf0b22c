// Package handler implements the HTTP API of configctx.
//
// ContextHandler serves config context records, groups, targets and the
// rendered config context of each target. Register adds its routes to a
// ServeMux using method patterns.
//
// # Formats
//
// Record bodies are context documents in JSON or YAML, chosen by
// Content-Type. Rendered output is JSON unless ?format=yaml or an Accept
// header asking for YAML says otherwise.
//
// # Caching
//
// Rendered contexts carry a strong ETag derived from their content. A GET
// with a matching If-None-Match returns 304 without a body.
//
// # Errors
//
// Errors are JSON objects with {error, details}. Missing entities map to
// 404, malformed input to 400 and name clashes or edits to synced records
// to 409.
//
// # Middleware
//
// Chain composes Recover, CORS and Logger around the mux. Logger also
// feeds a request latency histogram.
package handler
