// Package journal stores every frame the bridge reads from or writes to the
// serial bus in the SQLite frames table, and serves paginated queries over
// it for the HTTP API and the CLI.
//
// Undecodable lines are journaled too, with ok=0 and the decode error, so a
// noisy bus can be diagnosed after the fact.
package journal
