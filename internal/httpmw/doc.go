// Package httpmw provides the HTTP middleware stages composed by the
// security pipeline.
//
// Each stage is an independent function that can be tested, reordered, or
// removed individually; internal/pipeline owns the contractual ordering.
// User-supplied data (query params, body values, user-agent) is excluded
// from log fields except where the audit trail requires it.
package httpmw
