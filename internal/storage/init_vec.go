//go:build sqlite_vec && cgo

package storage

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Registers the sqlite-vec extension as auto-loadable for every
	// connection mattn/go-sqlite3 opens, including ones opened before this
	// package's Store wrapper exists.
	vec.Auto()
}
