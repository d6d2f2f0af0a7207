// Package relay streams AI summaries from the upstream summary service to
// one caller at a time without buffering the full response.
//
// The upstream speaks server-sent events: each unit is a "data: " line
// carrying a JSON object, terminated by a blank line. Isolated malformed
// frames are skipped; a genuine upstream failure terminates only the one
// stream it belongs to.
package relay
