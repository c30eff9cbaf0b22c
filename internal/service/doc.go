// Package service implements business logic for configctx.
//
// Services sit between the HTTP handlers and the repository. They validate
// input, assign identifiers, publish events and run the resolver.
//
// # Services
//
// ContextService manages config context records, groups and targets, and
// renders the config context of a target. Renders are cached in an ARC
// cache keyed by an xxh3 fingerprint of everything the render read; any
// published event purges the cache.
//
// SyncService mirrors a directory of JSON and YAML context documents into
// the database. Records it creates carry a "sync:<path>" source and can only
// be changed by editing the files.
//
// # Event System
//
// All writes publish events via EventBus. The server forwards them to
// Server-Sent Events clients.
//
// # Metrics
//
// Render counts, issue counts by kind, resolve latency, cache hit rates and
// sync outcomes are exported through the default Prometheus registry.
package service
