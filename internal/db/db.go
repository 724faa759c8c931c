package db

import (
	"time"

	"github.com/boltdb/bolt"
)

// Connect opens (creating if necessary) the scan database at the given path.
// The timeout keeps a second process from blocking forever on bolt's file
// lock.
func Connect(path string) (*bolt.DB, error) {
	return bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
}
