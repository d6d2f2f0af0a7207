// Package resilience provides a circuit breaker for downstream calls.
//
// The relay uses it so a summary service that is down stops eating the
// full connect timeout on every dashboard request.
package resilience
