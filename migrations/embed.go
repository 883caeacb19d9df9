// Package migrations holds the SQLite schema for subscriptions and check
// metadata as embedded golang-migrate files.
package migrations

import "embed"

// FS is read by database.ApplyMigrations through the iofs source driver.
//
//go:embed *.sql
var FS embed.FS
