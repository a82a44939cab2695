//go:build cgo

package store

// Registers the mattn/go-sqlite3 driver as "sqlite3" for cgo builds, so the
// store can run on the C SQLite amalgamation instead of the modernc port.
import _ "github.com/mattn/go-sqlite3"

// CgoDriver is the driver name registered by mattn/go-sqlite3.
const CgoDriver = "sqlite3"
