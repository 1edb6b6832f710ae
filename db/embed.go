// Package db carries the embedded database schema.
package db

import _ "embed"

// Schema holds the idempotent DDL applied at startup.
//
//go:embed schema.sql
var Schema string
