// Package storage provides the key-value store backing the watcher:
// portal credentials, the active session cookie, the last-seen notice
// cursor, and the delivery webhook URL.
//
// Two drivers are supported:
//   - "file": snapshot + append-only journal, no external dependencies
//   - "sqlite": single-file SQLite database
package storage
