//go:build sqlite_vec && cgo

package retrieval

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Registers the sqlite-vec extension with the mattn/go-sqlite3 driver
	// as an auto-loadable extension. Without this build tag the index
	// detects the missing vec0 module and runs keyword search.
	vec.Auto()
}
