// Package stores provides the persistence layer for action history.
// It includes SQLite-based storage with WAL mode, embedded migrations,
// and CRUD operations for sessions, action records, and alerts, plus a
// recorder that mirrors live engine state into history.
package stores
