// Package catalog implements the manager's catalog client (spec
// §4.11): a periodic JSON status push advertising the project to one
// or more catalog hosts, and an optional query of catalog-advertised
// worker factories used to cap and trim idle workers spawned under a
// factory.
//
// Grounded on
// _examples/original_source/dttools/src/catalog_update.c's periodic
// push-a-JSON-blob-over-HTTP shape; this port uses net/http and
// encoding/json rather than the original's raw UDP datagram, since the
// manager already has an HTTP client available and the catalog host
// in this system is addressed by URL, not by hostname:port datagram.
package catalog
