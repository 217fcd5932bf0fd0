// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

// Package store persists date-partitioned vehicle state to BadgerDB.
//
// One durable record exists per calendar date (UTC), holding the full
// vehicleId → VehicleRecord mapping for that day serialized as JSON.
// Badger transactions make every Save atomic: a concurrent Load observes
// either the previous partition or the new one, never a partial write.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/fleettrace/internal/logging"
	"github.com/tomtom215/fleettrace/internal/metrics"
	"github.com/tomtom215/fleettrace/internal/models"
)

// ErrNotFound is returned by Query when no partition was ever recorded
// for a date. An empty-but-recorded day is not ErrNotFound.
var ErrNotFound = errors.New("no data recorded for date")

const dayKeyPrefix = "day:"

// DailyStore is the durable day-partition persistence interface.
type DailyStore interface {
	// Save overwrites the durable partition for the date. Atomic with
	// respect to concurrent Load/Query.
	Save(date string, partition models.DayPartition) error

	// Load returns the partition for the date, or an empty partition if
	// none was ever written. Used at startup to restore today's state.
	Load(date string) (models.DayPartition, error)

	// Query returns the partition for the date, or ErrNotFound if no
	// record exists (distinct from an empty recorded day).
	Query(date string) (models.DayPartition, error)

	// Dates lists every date key with a recorded partition, ascending.
	Dates() ([]string, error)

	// Close releases the underlying database.
	Close() error
}

// BadgerStore implements DailyStore on BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// Options configures the Badger-backed store.
type Options struct {
	// Path is the database directory.
	Path string

	// SyncWrites forces fsync on every commit.
	SyncWrites bool

	// InMemory runs without a directory; used in tests.
	InMemory bool
}

// Open creates or opens the day-partition store at the configured path.
func Open(opts Options) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)
	badgerOpts.SyncWrites = opts.SyncWrites
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
		badgerOpts.Dir = ""
		badgerOpts.ValueDir = ""
	}
	// Badger logs through its own interface; route it to zerolog.
	badgerOpts.Logger = badgerLogger{}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Save overwrites the durable representation of one day.
func (s *BadgerStore) Save(date string, partition models.DayPartition) error {
	start := time.Now()

	data, err := json.Marshal(partition)
	if err != nil {
		metrics.StoreWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal partition %s: %w", date, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dayKey(date), data)
	})
	if err != nil {
		metrics.StoreWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("write partition %s: %w", date, err)
	}

	metrics.StoreWrites.WithLabelValues("ok").Inc()
	metrics.StoreWriteDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Load returns the stored partition, or an empty one if never written.
func (s *BadgerStore) Load(date string) (models.DayPartition, error) {
	partition, err := s.Query(date)
	if errors.Is(err, ErrNotFound) {
		return models.DayPartition{}, nil
	}
	return partition, err
}

// Query returns the stored partition or ErrNotFound.
func (s *BadgerStore) Query(date string) (models.DayPartition, error) {
	var partition models.DayPartition

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dayKey(date))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &partition)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read partition %s: %w", date, err)
	}

	if partition == nil {
		partition = models.DayPartition{}
	}
	return partition, nil
}

// Dates lists all recorded partition dates in ascending order.
func (s *BadgerStore) Dates() ([]string, error) {
	var dates []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(dayKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			dates = append(dates, key[len(dayKeyPrefix):])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list partition dates: %w", err)
	}
	return dates, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func dayKey(date string) []byte {
	return []byte(dayKeyPrefix + date)
}

// badgerLogger adapts badger's logger interface to zerolog. Badger is
// chatty at INFO during compaction, so its info output maps to debug.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}
