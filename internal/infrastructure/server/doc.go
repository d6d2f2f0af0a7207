// Package server assembles the nest: store, hub, relay client, demo
// loader, and the full gin middleware and route surface, with graceful
// shutdown on top of net/http.
package server
