package db

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/boltdb/bolt"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/fedragon/go-neardup/internal/models"
)

var (
	bucketName = []byte("scan_results")
	latestKey  = []byte("latest")
)

// ErrNoScanResult signals that no usable scan result is stored; callers fall
// back to a full scan. Corrupt records are reported the same way, so a
// damaged database degrades to a rescan instead of an outage.
var ErrNoScanResult = errors.New("no scan result stored")

// Store persists scan results between sessions.
type Store interface {
	SaveLatest(result models.ScanResult) error
	LoadLatest() (models.ScanResult, error)
	LoadByID(scanID string) (models.ScanResult, error)
	ScanIDs() ([]string, error)
	Forget() error
}

type BoltStore struct {
	db     *bolt.DB
	logger *zap.Logger
}

// NewStore wraps an open database, creating the results bucket when missing.
func NewStore(db *bolt.DB, logger *zap.Logger) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating bucket %s: %w", string(bucketName), err)
	}

	return &BoltStore{db: db, logger: logger}, nil
}

// SaveLatest stores the result under its own scan ID and as the latest
// result, in one transaction.
func (s *BoltStore) SaveLatest(result models.ScanResult) error {
	marshalled, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling scan result: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if err := bucket.Put([]byte(result.ScanID), marshalled); err != nil {
			return err
		}
		return bucket.Put(latestKey, marshalled)
	})
}

// LoadLatest returns the most recently saved result, or ErrNoScanResult when
// nothing usable is stored.
func (s *BoltStore) LoadLatest() (models.ScanResult, error) {
	return s.load(latestKey)
}

// LoadByID returns the result of one specific scan.
func (s *BoltStore) LoadByID(scanID string) (models.ScanResult, error) {
	return s.load([]byte(scanID))
}

func (s *BoltStore) load(key []byte) (models.ScanResult, error) {
	var result models.ScanResult

	err := s.db.View(func(tx *bolt.Tx) error {
		stored := tx.Bucket(bucketName).Get(key)
		if stored == nil {
			return ErrNoScanResult
		}

		if err := json.Unmarshal(stored, &result); err != nil {
			s.logger.Warn("Discarding corrupt scan result",
				zap.String("key", string(key)),
				zap.Error(err))
			return ErrNoScanResult
		}
		return nil
	})
	if err != nil {
		return models.ScanResult{}, err
	}

	return result, nil
}

// ScanIDs lists the IDs of all stored scans, in key order.
func (s *BoltStore) ScanIDs() ([]string, error) {
	var ids []string

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			if bytes.Equal(k, latestKey) {
				return nil
			}
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// Forget drops every stored result.
func (s *BoltStore) Forget() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
}

// Export writes a result as indented JSON, atomically so readers never see a
// half-written file.
func Export(path string, result models.ScanResult) error {
	marshalled, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling scan result: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(marshalled)); err != nil {
		return fmt.Errorf("writing %v: %w", path, err)
	}
	return nil
}
