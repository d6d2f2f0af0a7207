// Command server runs the Kastrel Nest trace aggregation service.
//
// Configuration comes from environment variables, optionally overlaid
// with a YAML file via --config or NEST_CONFIG. The --port flag wins
// over both.
package main
