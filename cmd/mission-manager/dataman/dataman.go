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

// Package dataman is the persistent record store the mission manager and the
// navigation executor share. Records are addressed by (region, index); writes
// of a single record are atomic.
package dataman

import (
	"errors"
	"sync"
)

// Region is a record namespace inside the store.
type Region uint8

const (
	// RegionMissionState holds a single record with the active dataman id,
	// item count and current sequence.
	RegionMissionState Region = 0
	// RegionWaypoints0 and RegionWaypoints1 are the two mirrored mission item
	// regions. Only the one referenced by the mission state record is
	// authoritative, the other is staging for the next upload.
	RegionWaypoints0 Region = 1
	RegionWaypoints1 Region = 2
	// RegionFencePoints: index 0 is the stats record, indices 1..count are
	// fence points.
	RegionFencePoints Region = 3
	// RegionSafePoints: index 0 is the stats record, indices 1..count are
	// safe points.
	RegionSafePoints Region = 4
)

// WaypointsRegion maps a dataman slot id to its waypoint region.
func WaypointsRegion(datamanID uint8) Region {
	if datamanID == 0 {
		return RegionWaypoints0
	}
	return RegionWaypoints1
}

// PersistClass selects the durability of a write.
type PersistClass uint8

const (
	PersistPowerOnReset  PersistClass = 0 // survives power cycling
	PersistInFlightReset PersistClass = 1
	PersistVolatile      PersistClass = 2
)

var (
	// ErrNotFound is returned by Read when no record exists at the address.
	ErrNotFound = errors.New("dataman: record not found")
	// ErrLocked is returned by Lock when the region is already held.
	ErrLocked = errors.New("dataman: region locked")
)

// Store is the persistent record store. Lock takes the advisory exclusive
// lock of a region without blocking; callers that fail to get it may proceed
// at their own risk.
type Store interface {
	Read(region Region, index uint16) ([]byte, error)
	Write(region Region, index uint16, persist PersistClass, data []byte) error
	Lock(region Region) error
	Unlock(region Region)
	Close() error
}

// regionLocks implements the advisory per-region locks shared by the store
// backends. The locks are process-local: the executor and all link instances
// run in one process.
type regionLocks struct {
	mu   sync.Mutex
	held map[Region]bool
}

func newRegionLocks() *regionLocks {
	return &regionLocks{held: make(map[Region]bool)}
}

func (l *regionLocks) lock(region Region) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[region] {
		return ErrLocked
	}
	l.held[region] = true
	return nil
}

func (l *regionLocks) unlock(region Region) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, region)
}
