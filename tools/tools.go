//go:build tools

package tools

// Pins the migration CLI used against the embedded schema.

import (
	_ "github.com/pressly/goose/v3/cmd/goose"
)
