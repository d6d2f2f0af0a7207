// Package ws serves the dashboard's real-time push channel.
//
// Each viewer gets a dedicated read loop that blocks until the peer goes
// away; disconnect (clean or not) unsubscribes the viewer from the hub.
// All data flows hub to viewer; inbound frames are drained and dropped.
package ws
