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

package mission

import (
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/mission-link/cmd/mission-manager/dataman"
	"github.com/united-manufacturing-hub/mission-link/cmd/mission-manager/wire"
	"github.com/united-manufacturing-hub/mission-link/pkg/datamodel"
)

// Store failures are reported to the operator at most this often per manager
// instance, the rest only reach the log.
const storeErrNotifyLimit = 2

// SharedState holds the list state that all link managers of the process
// share: one authoritative store, one set of counts. Its mutex also
// serializes HandleFrame and Tick across managers, standing in for the
// single-threaded scheduler of the flight stack: a count/item/commit sequence
// can never interleave with another partner's upload.
type SharedState struct {
	mu sync.Mutex

	initialized bool

	datamanID   uint8
	count       [3]int
	currentSeq  int
	lastReached int

	transferInProgress    bool
	geofenceUpdateCounter uint16
}

func NewSharedState() *SharedState {
	return &SharedState{lastReached: -1}
}

// initFromStore loads the persisted mission state and list stats once per
// process. Missing records mean empty lists, read failures are logged and
// leave the defaults in place.
func (s *SharedState) initFromStore(store dataman.Store) {
	if s.initialized {
		return
	}
	s.initialized = true

	var state datamodel.MissionState
	err := readRecord(store, dataman.RegionMissionState, 0, &state)
	if err == nil {
		s.datamanID = state.DatamanID
		s.count[datamodel.ListMission] = state.Count
		s.currentSeq = state.CurrentSeq
	} else if !errors.Is(err, dataman.ErrNotFound) {
		zap.S().Errorf("Mission state init failed: %s", err)
	}

	s.loadGeofenceStats(store)
	s.loadSafePointStats(store)
}

func (s *SharedState) loadGeofenceStats(store dataman.Store) {
	var stats datamodel.ListStats
	err := readRecord(store, dataman.RegionFencePoints, 0, &stats)
	if err == nil {
		s.count[datamodel.ListFence] = stats.NumItems
		s.geofenceUpdateCounter = stats.UpdateCounter
	} else if !errors.Is(err, dataman.ErrNotFound) {
		zap.S().Errorf("Geofence stats read failed: %s", err)
	}
}

func (s *SharedState) loadSafePointStats(store dataman.Store) {
	var stats datamodel.ListStats
	err := readRecord(store, dataman.RegionSafePoints, 0, &stats)
	if err == nil {
		s.count[datamodel.ListRally] = stats.NumItems
	} else if !errors.Is(err, dataman.ErrNotFound) {
		zap.S().Errorf("Safe point stats read failed: %s", err)
	}
}

func readRecord(store dataman.Store, region dataman.Region, index uint16, out interface{}) error {
	data, err := store.Read(region, index)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode record %d/%d: %w", region, index, err)
	}
	return nil
}

func writeRecord(store dataman.Store, region dataman.Region, index uint16, in interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode record %d/%d: %w", region, index, err)
	}
	return store.Write(region, index, dataman.PersistPowerOnReset, data)
}

// updateActiveMission writes the new mission state record and publishes it to
// the consumer. The dataman id flip inside the record is the publication
// signal for a replaced list.
func (m *Manager) updateActiveMission(datamanID uint8, count, seq int) error {
	state := datamodel.MissionState{
		DatamanID:  datamanID,
		Count:      count,
		CurrentSeq: seq,
	}

	if err := writeRecord(m.store, dataman.RegionMissionState, 0, &state); err != nil {
		zap.S().Errorf("WPM: can't save mission state: %s", err)
		m.storeError("Mission storage: unable to write mission state")
		return err
	}

	m.shared.datamanID = datamanID
	m.shared.count[datamodel.ListMission] = count
	m.shared.currentSeq = seq
	m.myDatamanID = datamanID

	if m.notifier != nil {
		m.notifier.MissionStateChanged(state)
	}
	return nil
}

// updateGeofenceCount writes the fence stats record; the strictly increasing
// update counter tells the navigator to reload the fence data.
func (m *Manager) updateGeofenceCount(count int) error {
	m.shared.geofenceUpdateCounter++
	stats := datamodel.ListStats{
		NumItems:      count,
		UpdateCounter: m.shared.geofenceUpdateCounter,
	}

	if err := writeRecord(m.store, dataman.RegionFencePoints, 0, &stats); err != nil {
		zap.S().Errorf("WPM: can't save geofence stats: %s", err)
		m.storeError("Mission storage: unable to write geofence stats")
		return err
	}

	m.shared.count[datamodel.ListFence] = count
	return nil
}

func (m *Manager) updateSafePointCount(count int) error {
	stats := datamodel.ListStats{NumItems: count}

	if err := writeRecord(m.store, dataman.RegionSafePoints, 0, &stats); err != nil {
		zap.S().Errorf("WPM: can't save safe point stats: %s", err)
		m.storeError("Mission storage: unable to write safe point stats")
		return err
	}

	m.shared.count[datamodel.ListRally] = count
	return nil
}

// readItemForSend loads item seq of the given kind from the store and
// normalizes it into the internal record form.
func (m *Manager) readItemForSend(kind datamodel.ListKind, seq uint16) (datamodel.MissionItem, error) {
	var item datamodel.MissionItem

	switch kind {
	case datamodel.ListMission:
		region := dataman.WaypointsRegion(m.shared.datamanID)
		if err := readRecord(m.store, region, seq, &item); err != nil {
			return item, err
		}

	case datamodel.ListFence:
		var fp datamodel.FencePoint
		if err := readRecord(m.store, dataman.RegionFencePoints, seq+1, &fp); err != nil {
			return item, err
		}
		item.Command = fp.Command
		item.Frame = fp.Frame
		item.Lat = fp.Lat
		item.Lon = fp.Lon
		item.Altitude = fp.Alt
		if datamodel.IsPolygonCmd(fp.Command) {
			item.VertexCount = fp.VertexCount
		} else {
			item.CircleRadius = fp.CircleRadius
		}

	case datamodel.ListRally:
		var sp datamodel.SafePoint
		if err := readRecord(m.store, dataman.RegionSafePoints, seq+1, &sp); err != nil {
			return item, err
		}
		item.Command = datamodel.CmdNavRallyPoint
		item.Frame = sp.Frame
		item.Lat = sp.Lat
		item.Lon = sp.Lon
		item.Altitude = sp.Alt

	default:
		return item, fmt.Errorf("unknown list kind %d", kind)
	}

	return item, nil
}

// writeTransferItem stores one translated upload item into the staging
// location of the active transfer. A non-Accepted ack code means the item was
// rejected (wrong command for the list, infeasible polygon); writeErr reports
// a store failure.
func (m *Manager) writeTransferItem(seq uint16, item *datamodel.MissionItem) (ack wire.AckType, writeErr error) {
	switch m.missionType {
	case datamodel.ListMission:
		// Hardening against wrong client implementations: fence and rally
		// commands never belong in a navigation mission.
		if datamodel.IsFenceCmd(item.Command) || item.Command == datamodel.CmdNavRallyPoint {
			return wire.AckUnsupported, nil
		}
		region := dataman.WaypointsRegion(m.transferDatamanID)
		return wire.AckAccepted, writeRecord(m.store, region, seq, item)

	case datamodel.ListFence:
		fp := datamodel.FencePoint{
			Command: item.Command,
			Frame:   item.Frame,
			Lat:     item.Lat,
			Lon:     item.Lon,
			Alt:     item.Altitude,
		}
		if datamodel.IsPolygonCmd(item.Command) {
			fp.VertexCount = item.VertexCount
			if item.VertexCount < 3 {
				zap.S().Errorf("Geofence: too few vertices (%d)", item.VertexCount)
				_ = m.updateGeofenceCount(0)
				return wire.AckInvalidParam1, nil
			}
		} else {
			fp.CircleRadius = item.CircleRadius
		}
		return wire.AckAccepted, writeRecord(m.store, dataman.RegionFencePoints, seq+1, &fp)

	case datamodel.ListRally:
		sp := datamodel.SafePoint{
			Frame: item.Frame,
			Lat:   item.Lat,
			Lon:   item.Lon,
			Alt:   item.Altitude,
		}
		return wire.AckAccepted, writeRecord(m.store, dataman.RegionSafePoints, seq+1, &sp)
	}

	return wire.AckAccepted, fmt.Errorf("unknown list kind %d", m.missionType)
}

// storeError raises an operator notification for a store failure, capped so a
// broken card does not flood the channel.
func (m *Manager) storeError(text string) {
	storeErrors.Inc()
	m.fsErrCount++
	if m.fsErrCount <= storeErrNotifyLimit {
		m.status.Critical(text)
	}
}
