// Package httpapi serves the context API over HTTP.
//
// Routes live under /v1 and speak JSON. Store misses map to 404,
// rejected input to 400, and raced compressions to 409; everything else
// is a 500. The metrics endpoint is served separately by the daemon.
package httpapi
