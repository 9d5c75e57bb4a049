// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history persists workflow runs in BadgerDB.
//
// Keys are "run/<started>/<run id>" with a fixed-width UTC timestamp, so a
// reverse prefix scan yields runs newest first.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("history: run not found")

const (
	keyPrefix  = "run/"
	keyTimeFmt = "20060102T150405.000000000"
)

// Record is one finished workflow run.
type Record struct {
	RunID      string        `json:"run_id"`
	Workflow   string        `json:"workflow"`
	Basedir    string        `json:"basedir"`
	Status     string        `json:"status"`
	ReleaseID  string        `json:"release_id,omitempty"`
	PreviousID string        `json:"previous_id,omitempty"`
	FailedStep string        `json:"failed_step,omitempty"`
	Error      string        `json:"error,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Removed    []string      `json:"removed,omitempty"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration"`
}

// Filter narrows List.
type Filter struct {
	// Basedir keeps only runs against this target when set.
	Basedir string

	// Limit caps the number of records. Zero means no limit.
	Limit int
}

// Config configures the store.
type Config struct {
	// Dir is the database directory. Required unless InMemory.
	Dir string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// Store is a BadgerDB-backed run history.
//
// # Thread Safety
//
// Safe for concurrent use. Badger allows a single process per directory.
type Store struct {
	db *badger.DB
}

// Open opens or creates the store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("history: dir is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}

	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway store.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record saves one run.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.RunID == "" {
		return errors.New("history: record has no run id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec), data)
	})
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Record, error) {
	records := []Record{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekLast(keyPrefix)); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}

			if filter.Basedir != "" && rec.Basedir != filter.Basedir {
				continue
			}
			records = append(records, rec)
			if filter.Limit > 0 && len(records) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns a single run by id.
func (s *Store) Get(ctx context.Context, runID string) (Record, error) {
	records, err := s.List(ctx, Filter{})
	if err != nil {
		return Record{}, err
	}
	for _, rec := range records {
		if rec.RunID == runID {
			return rec, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
}

func recordKey(rec Record) []byte {
	return []byte(keyPrefix + rec.Started.UTC().Format(keyTimeFmt) + "/" + rec.RunID)
}

// seekLast returns a key greater than every key under prefix.
func seekLast(prefix string) []byte {
	return append([]byte(prefix), 0xFF)
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Lister opens the store for each List call and closes it afterwards.
// A long-running reader such as the status server uses it so that it
// does not hold the directory lock a concurrent deploy needs.
type Lister struct {
	Config Config
}

// List implements the statusserver history source.
func (l Lister) List(ctx context.Context, filter Filter) ([]Record, error) {
	s, err := Open(l.Config)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.List(ctx, filter)
}
