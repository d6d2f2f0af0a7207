// Package http provides the REST surface of the nest: perch-facing
// ingestion under /api/v1, the dashboard query API, demo data replay,
// session login, and the streaming summarize relay.
package http
