// Package server hosts the Fiber HTTP service and its middleware chain: request
// IDs, panic recovery, the split between the page pipeline and the `/-/` admin
// surface, plus the shared origin client and the admin nonce issuer. Handlers
// are injected so tests can replace the page pipeline with a recorder.
package server
