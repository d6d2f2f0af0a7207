// Package hub implements best-effort broadcast to live viewer channels.
//
// The hub is self-healing: broken peers are evicted on the next publish
// rather than requiring an explicit health check, since viewers may
// disconnect uncleanly at any time.
package hub
