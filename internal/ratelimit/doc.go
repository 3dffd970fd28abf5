// Package ratelimit provides fixed-window request counting keyed by client
// identity and endpoint class.
//
// The counter store is an abstraction with two implementations: an in-process
// map for single-instance deployments and a Redis-backed store so limits are
// enforced fleet-wide when the portal runs behind a load balancer. Increments
// are atomic in both; an undercounted limiter weakens brute-force protection,
// so the increment-and-compare is the one place a race matters here.
//
// Two limiters are built on the store: a general limiter for API paths, and a
// stricter auth limiter where only failed attempts consume budget.
package ratelimit
