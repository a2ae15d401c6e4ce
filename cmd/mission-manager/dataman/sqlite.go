// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//          http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataman

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists records in a single sqlite database file. One record
// write maps to one upsert, which sqlite applies atomically.
type SQLiteStore struct {
	db    *sql.DB
	locks *regionLocks
}

// NewSQLiteStore opens (creating if needed) the store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open dataman store: %w", err)
	}
	// A single writer connection keeps record writes serialized.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS records (
	region  INTEGER NOT NULL,
	idx     INTEGER NOT NULL,
	persist INTEGER NOT NULL,
	payload BLOB    NOT NULL,
	PRIMARY KEY (region, idx)
)`
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}

	return &SQLiteStore{db: db, locks: newRegionLocks()}, nil
}

func (s *SQLiteStore) Read(region Region, index uint16) ([]byte, error) {
	const q = `SELECT payload FROM records WHERE region = ? AND idx = ?`
	var payload []byte
	err := s.db.QueryRow(q, region, index).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read record %d/%d: %w", region, index, err)
	}
	return payload, nil
}

func (s *SQLiteStore) Write(region Region, index uint16, persist PersistClass, data []byte) error {
	const q = `INSERT INTO records (region, idx, persist, payload) VALUES (?, ?, ?, ?)
ON CONFLICT (region, idx) DO UPDATE SET persist = excluded.persist, payload = excluded.payload`
	if _, err := s.db.Exec(q, region, index, persist, data); err != nil {
		return fmt.Errorf("write record %d/%d: %w", region, index, err)
	}
	return nil
}

func (s *SQLiteStore) Lock(region Region) error {
	return s.locks.lock(region)
}

func (s *SQLiteStore) Unlock(region Region) {
	s.locks.unlock(region)
}

// Ping reports whether the backing database is reachable, for readiness
// checks.
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
