// Package storage persists the bot settings record and the alert log.
//
// Two drivers share the Store interface: a dependency-free file backend
// (settings JSON + alerts JSON Lines) and SQLite via modernc.org/sqlite.
package storage
