// Package stores provides the client-local SQLite persistence for
// camline: which orders were edited, the selected machine profile, the
// last successful artifact per pipeline stage, and an append-only
// activity log. None of this is authoritative — the remote service owns
// the specification — it only makes resuming an order cheap.
//
// The schema is managed with embedded golang-migrate migrations and the
// pure-Go modernc.org/sqlite driver.
package stores
