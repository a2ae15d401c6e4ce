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

// Package mission implements the endpoint side of the waypoint / geofence /
// rally point transfer protocol: uploads from a ground station into the
// dataman store, downloads back out of it, clears, and the periodic progress
// broadcasts.
package mission

import (
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/mission-link/cmd/mission-manager/dataman"
	"github.com/united-manufacturing-hub/mission-link/cmd/mission-manager/wire"
	"github.com/united-manufacturing-hub/mission-link/internal"
	"github.com/united-manufacturing-hub/mission-link/pkg/datamodel"
)

// Phase is the transfer state of one manager instance.
type Phase uint8

const (
	PhaseIdle     Phase = 0
	PhaseSendList Phase = 1 // downloading the list to the partner
	PhaseGetList  Phase = 2 // receiving an upload from the partner
)

// Component ids accepted as "addressed to us" besides our own.
const (
	compIDAll            = 0
	compIDMissionPlanner = 190
)

// Per-kind item capacity of the store regions.
var maxCount = [3]int{
	datamodel.ListMission: 200,
	datamodel.ListFence:   32,
	datamodel.ListRally:   10,
}

const (
	// currentBroadcastInterval rate-limits MissionCurrent to 10 Hz.
	currentBroadcastInterval = 100 * time.Millisecond
	// reachedRepeatWindow keeps re-sending a reached notice briefly so a
	// lossy link still gets it.
	reachedRepeatWindow = 300 * time.Millisecond
)

// Sender enqueues an outbound protocol frame on the link.
type Sender interface {
	Send(msg wire.Message)
}

// StatusText delivers operator-visible error strings.
type StatusText interface {
	Critical(text string)
}

// StateNotifier is told about every committed mission state change so the
// navigation executor reloads the active list.
type StateNotifier interface {
	MissionStateChanged(state datamodel.MissionState)
}

// Config is the per-link manager configuration.
type Config struct {
	SystemID    uint8
	ComponentID uint8

	// ActionTimeout bounds overall partner silence, RetryTimeout the per-item
	// request/response exchange.
	ActionTimeout time.Duration
	RetryTimeout  time.Duration

	Verbose bool
}

const (
	DefaultActionTimeout = 5 * time.Second
	DefaultRetryTimeout  = 500 * time.Millisecond
)

// Manager runs the transfer protocol for one telemetry link. All managers of
// a process share one SharedState and one store; SharedState's mutex
// serializes them.
type Manager struct {
	shared   *SharedState
	store    dataman.Store
	sender   Sender
	status   StatusText
	notifier StateNotifier

	results chan datamodel.MissionResult

	sysID   uint8
	compID  uint8
	verbose bool

	actionTimeout time.Duration
	retryTimeout  time.Duration

	state       Phase
	missionType datamodel.ListKind

	timeLastRecv    time.Time
	timeLastSent    time.Time
	timeLastReached time.Time

	intMode    bool
	fsErrCount int

	// myDatamanID is this instance's cached view of the active mission slot;
	// divergence from the shared id means another link replaced the mission.
	myDatamanID uint8

	transferDatamanID  uint8
	transferCount      int
	transferSeq        int
	transferCurrentSeq int
	partnerSysID       uint8
	partnerCompID      uint8

	geofenceLocked bool

	currentLimiter *internal.RateLimiter

	clock func() time.Time
}

// NewManager creates a link manager. The first manager of a process loads the
// persisted list state.
func NewManager(cfg Config, shared *SharedState, store dataman.Store, sender Sender, status StatusText, notifier StateNotifier) *Manager {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = DefaultRetryTimeout
	}

	m := &Manager{
		shared:             shared,
		store:              store,
		sender:             sender,
		status:             status,
		notifier:           notifier,
		results:            make(chan datamodel.MissionResult, 16),
		sysID:              cfg.SystemID,
		compID:             cfg.ComponentID,
		verbose:            cfg.Verbose,
		actionTimeout:      cfg.ActionTimeout,
		retryTimeout:       cfg.RetryTimeout,
		missionType:        datamodel.ListMission,
		transferCurrentSeq: -1,
		currentLimiter:     internal.NewRateLimiter(currentBroadcastInterval),
		clock:              time.Now,
	}

	shared.mu.Lock()
	shared.initFromStore(store)
	m.myDatamanID = shared.datamanID
	shared.mu.Unlock()

	return m
}

// Results is where the navigation executor's progress events are delivered;
// the next Tick consumes them.
func (m *Manager) Results() chan<- datamodel.MissionResult {
	return m.results
}

// HandleFrame routes one decoded link frame. Frames not addressed to this
// endpoint and unknown payloads are dropped silently.
func (m *Manager) HandleFrame(f wire.Frame) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()

	if !m.acceptsTarget(f.Msg) {
		return
	}
	framesHandled.WithLabelValues(msgLabel(f.Msg.ID())).Inc()

	switch msg := f.Msg.(type) {
	case wire.MissionAck:
		m.handleAck(f, msg)
	case wire.MissionSetCurrent:
		m.handleSetCurrent(f, msg)
	case wire.MissionRequestList:
		m.handleRequestList(f, msg)
	case wire.MissionRequest:
		// The request comes in the float encoding, switch to it.
		m.intMode = false
		m.handleRequest(f, msg.Seq, msg.Kind)
	case wire.MissionRequestInt:
		m.intMode = true
		m.handleRequest(f, msg.Seq, msg.Kind)
	case wire.MissionCount:
		m.handleCount(f, msg)
	case wire.MissionItem:
		m.intMode = false
		m.handleItem(f, fromFloatItem(msg))
	case wire.MissionItemInt:
		m.intMode = true
		m.handleItem(f, fromIntItem(msg))
	case wire.MissionClearAll:
		m.handleClearAll(f, msg)
	}
}

func (m *Manager) acceptsTarget(msg wire.Message) bool {
	t, ok := wire.TargetOf(msg)
	if !ok {
		return false
	}
	return t.System == m.sysID &&
		(t.Component == m.compID || t.Component == compIDMissionPlanner || t.Component == compIDAll)
}

func (m *Manager) isPartner(f wire.Frame) bool {
	return f.SysID == m.partnerSysID && f.CompID == m.partnerCompID
}

func (m *Manager) currentItemCount() int {
	if int(m.missionType) >= len(m.shared.count) {
		zap.S().Errorf("WPM: list count out of bounds (%d)", m.missionType)
		return 0
	}
	return m.shared.count[m.missionType]
}

func (m *Manager) currentMaxItemCount() int {
	if int(m.missionType) >= len(maxCount) {
		zap.S().Errorf("WPM: capacity out of bounds (%d)", m.missionType)
		return 0
	}
	return maxCount[m.missionType]
}

// switchToIdle is the only place that leaves a transfer phase. It always
// releases the geofence lock if it is held, whatever path got us here.
func (m *Manager) switchToIdle() {
	if m.geofenceLocked {
		m.store.Unlock(dataman.RegionFencePoints)
		m.geofenceLocked = false

		if m.verbose {
			zap.S().Debugf("WPM: unlocking geofence")
		}
	}

	m.state = PhaseIdle
}

// ---- inbound handlers -------------------------------------------------

func (m *Manager) handleAck(f wire.Frame, msg wire.MissionAck) {
	if !m.isPartner(f) {
		m.status.Critical("REJ. WP CMD: partner id mismatch")
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_ACK ERR: ID mismatch")
		}
		return
	}

	if m.state == PhaseSendList && m.missionType == msg.Kind {
		m.timeLastRecv = m.clock()

		// A refused download may mean the partner wants the other coordinate
		// encoding, try that one next time.
		if msg.Type != wire.AckAccepted {
			m.intMode = !m.intMode
		}

		if m.transferSeq == m.currentItemCount() {
			if m.verbose {
				zap.S().Debugf("WPM: MISSION_ACK OK all items sent, switch to state IDLE")
			}
			transfersCompleted.WithLabelValues(m.missionType.String(), "download").Inc()

		} else {
			m.status.Critical("WPM: ERR: not all items sent -> IDLE")
		}

		m.switchToIdle()

	} else if m.state == PhaseGetList {
		// A non-accepted ack during upload is the partner probing the other
		// coordinate encoding.
		if msg.Type != wire.AckAccepted {
			m.intMode = !m.intMode
		}
	}
}

func (m *Manager) handleSetCurrent(f wire.Frame, msg wire.MissionSetCurrent) {
	if m.state != PhaseIdle {
		m.status.Critical("WPM: IGN WP CURR CMD: Busy")
		return
	}
	m.timeLastRecv = m.clock()

	missionCount := m.shared.count[datamodel.ListMission]
	if int(msg.Seq) >= missionCount {
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_SET_CURRENT seq=%d ERROR: not in list", msg.Seq)
		}
		m.status.Critical("WPM: WP CURR CMD: Not in list")
		return
	}

	// The active slot stays put, only the current index moves.
	if err := m.updateActiveMission(m.shared.datamanID, missionCount, int(msg.Seq)); err != nil {
		m.status.Critical("WPM: WP CURR CMD: Error setting ID")
	}
}

func (m *Manager) handleRequestList(f wire.Frame, msg wire.MissionRequestList) {
	restartable := m.state == PhaseSendList && m.missionType == msg.Kind && m.isPartner(f)
	if m.state != PhaseIdle && !restartable {
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_REQUEST_LIST ERROR: busy")
		}
		m.status.Critical("IGN REQUEST LIST: Busy")
		return
	}
	m.timeLastRecv = m.clock()

	m.state = PhaseSendList
	m.missionType = msg.Kind

	// Make sure our item counts are up-to-date before announcing them.
	switch m.missionType {
	case datamodel.ListFence:
		m.shared.loadGeofenceStats(m.store)
	case datamodel.ListRally:
		m.shared.loadSafePointStats(m.store)
	}

	m.transferSeq = 0
	m.transferCount = m.currentItemCount()
	m.partnerSysID = f.SysID
	m.partnerCompID = f.CompID

	if m.verbose {
		zap.S().Debugf("WPM: MISSION_REQUEST_LIST OK, %d items to send, type=%s", m.transferCount, m.missionType)
	}

	m.sendMissionCount(f.SysID, f.CompID, uint16(m.transferCount), m.missionType)
}

func (m *Manager) handleRequest(f wire.Frame, seq uint16, kind datamodel.ListKind) {
	if !m.isPartner(f) {
		m.status.Critical("WPM: REJ. CMD: partner id mismatch")
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_ITEM_REQUEST ERROR: rejected, partner ID mismatch")
		}
		return
	}

	switch m.state {
	case PhaseSendList:

	case PhaseIdle:
		// Silently ignore, some OSDs have buggy transfer implementations.
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_ITEM_REQUEST ERROR: no transfer")
		}
		return

	default:
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_ITEM_REQUEST ERROR: busy (state %d)", m.state)
		}
		m.status.Critical("WPM: REJ. CMD: Busy")
		return
	}

	if m.missionType != kind {
		zap.S().Warnf("WPM: Unexpected mission type (%d %d)", kind, m.missionType)
		return
	}

	m.timeLastRecv = m.clock()

	// transferSeq is the sequence we expect to be asked for next.
	if int(seq) == m.transferSeq && m.transferSeq < m.transferCount {
		m.transferSeq++

	} else if int(seq) == m.transferSeq-1 {
		// Re-request of the last item, send it again without advancing.
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_ITEM_REQUEST seq %d (again)", seq)
		}

	} else {
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_ITEM_REQUEST ERROR: seq %d unexpected, expected %d", seq, m.transferSeq)
		}

		m.switchToIdle()
		m.sendMissionAck(m.partnerSysID, m.partnerCompID, wire.AckError)
		m.status.Critical("WPM: REJ. CMD: Req. WP was unexpected")
		return
	}

	// Double check bounds, the list may have been replaced meanwhile.
	if int(seq) < m.currentItemCount() {
		m.sendMissionItem(m.partnerSysID, m.partnerCompID, seq)

	} else {
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_ITEM_REQUEST ERROR: seq %d out of bounds", seq)
		}

		m.switchToIdle()
		m.sendMissionAck(m.partnerSysID, m.partnerCompID, wire.AckError)
		m.status.Critical("WPM: REJ. CMD: Req. WP was unexpected")
	}
}

func (m *Manager) handleCount(f wire.Frame, msg wire.MissionCount) {
	switch m.state {
	case PhaseIdle:
		m.timeLastRecv = m.clock()

		if m.shared.transferInProgress {
			// Another link is mid-upload; refuse this partner without
			// touching the running transfer.
			m.sendMissionAckKind(f.SysID, f.CompID, wire.AckError, msg.Kind)
			return
		}

		m.shared.transferInProgress = true
		m.missionType = msg.Kind

		if int(msg.Count) > m.currentMaxItemCount() {
			if m.verbose {
				zap.S().Debugf("WPM: MISSION_COUNT ERROR: too many items (%d), supported: %d", msg.Count, m.currentMaxItemCount())
			}
			m.sendMissionAck(f.SysID, f.CompID, wire.AckNoSpace)
			m.shared.transferInProgress = false
			return
		}

		if msg.Count == 0 {
			if m.verbose {
				zap.S().Debugf("WPM: MISSION_COUNT 0, clearing list, staying in state IDLE")
			}

			var err error
			switch m.missionType {
			case datamodel.ListMission:
				// Alternate the slot anyway so listeners notice the change.
				err = m.updateActiveMission(1-m.shared.datamanID, 0, 0)
			case datamodel.ListFence:
				err = m.updateGeofenceCount(0)
			case datamodel.ListRally:
				err = m.updateSafePointCount(0)
			default:
				zap.S().Errorf("WPM: mission type %d not handled", m.missionType)
			}

			if err != nil {
				m.sendMissionAck(f.SysID, f.CompID, wire.AckError)
			} else {
				m.sendMissionAck(f.SysID, f.CompID, wire.AckAccepted)
			}
			m.shared.transferInProgress = false
			return
		}

		if m.verbose {
			zap.S().Debugf("WPM: MISSION_COUNT %d from ID %d, changing state to GETLIST", msg.Count, f.SysID)
		}

		m.state = PhaseGetList
		m.transferSeq = 0
		m.partnerSysID = f.SysID
		m.partnerCompID = f.CompID
		m.transferCount = int(msg.Count)
		m.transferDatamanID = 1 - m.shared.datamanID // stage into the inactive slot
		m.transferCurrentSeq = -1

		if m.missionType == datamodel.ListFence {
			// New geofence items are about to be written, take the lock. It
			// is released when switching back to idle.
			if err := m.store.Lock(dataman.RegionFencePoints); err != nil {
				zap.S().Errorf("WPM: geofence locking failed: %s", err)
			} else {
				m.geofenceLocked = true
			}
		}

	case PhaseGetList:
		if !m.isPartner(f) {
			// Someone else trying to start an upload mid-transfer.
			m.sendMissionAckKind(f.SysID, f.CompID, wire.AckError, msg.Kind)
			m.status.Critical("WPM: REJ. CMD: partner id mismatch")
			return
		}

		m.timeLastRecv = m.clock()

		if m.transferSeq != 0 {
			if m.verbose {
				zap.S().Debugf("WPM: MISSION_COUNT ERROR: busy, already receiving seq %d", m.transferSeq)
			}
			m.status.Critical("WPM: REJ. CMD: Busy")
			return
		}
		// Looks like our first request was lost, ask again below.
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_COUNT %d from ID %d (again)", msg.Count, f.SysID)
		}

	default:
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_COUNT ERROR: busy, state %d", m.state)
		}
		m.status.Critical("WPM: IGN MISSION_COUNT: Busy")
		return
	}

	m.sendMissionRequest(m.partnerSysID, m.partnerCompID, uint16(m.transferSeq))
}

func (m *Manager) handleItem(f wire.Frame, it wireItem) {
	if it.kind != m.missionType {
		zap.S().Warnf("WPM: Unexpected mission type (%d %d)", it.kind, m.missionType)
		return
	}

	switch m.state {
	case PhaseGetList:
		if !m.isPartner(f) {
			m.status.Critical("WPM: REJ. CMD: partner id mismatch")
			return
		}

		m.timeLastRecv = m.clock()

		if int(it.seq) != m.transferSeq {
			if m.verbose {
				zap.S().Debugf("WPM: MISSION_ITEM ERROR: seq %d was not the expected %d", it.seq, m.transferSeq)
			}
			// No request here, the tick re-requests after the retry timeout.
			return
		}

	case PhaseIdle:
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_ITEM ERROR: no transfer")
		}
		m.status.Critical("IGN MISSION_ITEM: No transfer")
		return

	default:
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_ITEM ERROR: busy, state %d", m.state)
		}
		m.status.Critical("IGN MISSION_ITEM: Busy")
		return
	}

	rec, ackCode := translateItem(it)
	if ackCode != wire.AckAccepted {
		if m.verbose {
			zap.S().Debugf("WPM: MISSION_ITEM ERROR: seq %d invalid item", it.seq)
		}

		m.sendMissionAck(m.partnerSysID, m.partnerCompID, ackCode)
		m.switchToIdle()
		m.shared.transferInProgress = false
		return
	}

	ackCode, writeErr := m.writeTransferItem(it.seq, &rec)
	if ackCode != wire.AckAccepted || writeErr != nil {
		if writeErr != nil {
			zap.S().Errorf("WPM: MISSION_ITEM ERROR: error writing seq %d to dataman ID %d: %s", it.seq, m.transferDatamanID, writeErr)
			m.storeError("Mission storage: unable to write item")
			ackCode = wire.AckError
		}

		m.sendMissionAck(m.partnerSysID, m.partnerCompID, ackCode)
		m.switchToIdle()
		m.shared.transferInProgress = false
		return
	}

	if it.current {
		m.transferCurrentSeq = int(it.seq)
	}

	if m.verbose {
		zap.S().Debugf("WPM: MISSION_ITEM seq %d received", it.seq)
	}

	m.transferSeq = int(it.seq) + 1

	if m.transferSeq < m.transferCount {
		m.sendMissionRequest(m.partnerSysID, m.partnerCompID, uint16(m.transferSeq))
		return
	}

	// Got all items, commit the list.
	if m.verbose {
		zap.S().Debugf("WPM: MISSION_ITEM got all %d items, current_seq=%d, changing state to IDLE", m.transferCount, m.transferCurrentSeq)
	}

	var err error
	switch m.missionType {
	case datamodel.ListMission:
		err = m.updateActiveMission(m.transferDatamanID, m.transferCount, m.transferCurrentSeq)
	case datamodel.ListFence:
		err = m.updateGeofenceCount(m.transferCount)
	case datamodel.ListRally:
		err = m.updateSafePointCount(m.transferCount)
	default:
		zap.S().Errorf("WPM: mission type %d not handled", m.missionType)
	}

	// The stats commit has to happen before the unlock, so switch to idle
	// only now.
	m.switchToIdle()

	if err == nil {
		m.sendMissionAck(m.partnerSysID, m.partnerCompID, wire.AckAccepted)
		transfersCompleted.WithLabelValues(m.missionType.String(), "upload").Inc()
	} else {
		m.sendMissionAck(m.partnerSysID, m.partnerCompID, wire.AckError)
	}

	m.shared.transferInProgress = false
}

func (m *Manager) handleClearAll(f wire.Frame, msg wire.MissionClearAll) {
	if m.state != PhaseIdle {
		m.status.Critical("WPM: IGN CLEAR CMD: Busy")
		if m.verbose {
			zap.S().Debugf("WPM: CLEAR_ALL IGNORED: busy")
		}
		return
	}

	// Only the counts in the stats records are touched, not the item
	// records themselves.
	m.timeLastRecv = m.clock()
	m.missionType = msg.Kind // for the returned ack

	var err error
	switch msg.Kind {
	case datamodel.ListMission:
		err = m.updateActiveMission(1-m.shared.datamanID, 0, 0)
	case datamodel.ListFence:
		err = m.updateGeofenceCount(0)
	case datamodel.ListRally:
		err = m.updateSafePointCount(0)
	case datamodel.ListAll:
		err = m.updateActiveMission(1-m.shared.datamanID, 0, 0)
		if e := m.updateGeofenceCount(0); e != nil {
			err = e
		}
		if e := m.updateSafePointCount(0); e != nil {
			err = e
		}
	default:
		zap.S().Errorf("WPM: mission type %d not handled", msg.Kind)
	}

	if err == nil {
		if m.verbose {
			zap.S().Debugf("WPM: CLEAR_ALL OK (mission_type=%s)", msg.Kind)
		}
		m.sendMissionAck(f.SysID, f.CompID, wire.AckAccepted)
	} else {
		m.sendMissionAck(f.SysID, f.CompID, wire.AckError)
	}
}

// ---- outbound ---------------------------------------------------------

func (m *Manager) sendMissionAck(sysID, compID uint8, ackType wire.AckType) {
	m.sendMissionAckKind(sysID, compID, ackType, m.missionType)
}

func (m *Manager) sendMissionAckKind(sysID, compID uint8, ackType wire.AckType, kind datamodel.ListKind) {
	m.sender.Send(wire.MissionAck{
		TargetSystem:    sysID,
		TargetComponent: compID,
		Type:            ackType,
		Kind:            kind,
	})

	if m.verbose {
		zap.S().Debugf("WPM: Send MISSION_ACK type %d to ID %d", ackType, sysID)
	}
}

func (m *Manager) sendMissionCount(sysID, compID uint8, count uint16, kind datamodel.ListKind) {
	m.timeLastSent = m.clock()

	m.sender.Send(wire.MissionCount{
		TargetSystem:    sysID,
		TargetComponent: compID,
		Count:           count,
		Kind:            kind,
	})

	if m.verbose {
		zap.S().Debugf("WPM: Send MISSION_COUNT %d to ID %d, type=%s", count, sysID, kind)
	}
}

func (m *Manager) sendMissionRequest(sysID, compID uint8, seq uint16) {
	if int(seq) >= m.currentMaxItemCount() {
		m.status.Critical("ERROR: Waypoint index exceeds list capacity")
		if m.verbose {
			zap.S().Debugf("WPM: Send MISSION_REQUEST ERROR: seq %d exceeds list capacity", seq)
		}
		return
	}

	m.timeLastSent = m.clock()

	if m.intMode {
		m.sender.Send(wire.MissionRequestInt{
			TargetSystem:    sysID,
			TargetComponent: compID,
			Seq:             seq,
			Kind:            m.missionType,
		})
	} else {
		m.sender.Send(wire.MissionRequest{
			TargetSystem:    sysID,
			TargetComponent: compID,
			Seq:             seq,
			Kind:            m.missionType,
		})
	}

	if m.verbose {
		zap.S().Debugf("WPM: Send MISSION_REQUEST seq %d to ID %d", seq, sysID)
	}
}

func (m *Manager) sendMissionItem(sysID, compID uint8, seq uint16) {
	rec, err := m.readItemForSend(m.missionType, seq)
	if err != nil {
		m.sendMissionAck(m.partnerSysID, m.partnerCompID, wire.AckError)
		m.storeError("Mission storage: unable to read item")
		if m.verbose {
			zap.S().Debugf("WPM: Send MISSION_ITEM ERROR: could not read seq %d: %s", seq, err)
		}
		return
	}

	target := wire.Target{System: sysID, Component: compID}
	current := m.shared.currentSeq == int(seq)

	msg, ok := formatItem(&rec, target, seq, current, m.missionType, m.intMode)
	if !ok {
		m.sendMissionAck(m.partnerSysID, m.partnerCompID, wire.AckError)
		zap.S().Errorf("WPM: Send MISSION_ITEM ERROR: seq %d holds an unknown command %d", seq, rec.Command)
		return
	}

	m.timeLastSent = m.clock()
	m.sender.Send(msg)

	if m.verbose {
		zap.S().Debugf("WPM: Send MISSION_ITEM seq %d to ID %d", seq, sysID)
	}
}

func (m *Manager) sendMissionCurrent(seq int) {
	itemCount := m.shared.count[datamodel.ListMission]

	switch {
	case seq >= 0 && seq < itemCount:
		m.sender.Send(wire.MissionCurrent{Seq: uint16(seq)})

	case seq == 0 && itemCount == 0:
		// Nothing to broadcast without waypoints.

	default:
		if m.verbose {
			zap.S().Debugf("WPM: Send MISSION_CURRENT ERROR: seq %d out of bounds", seq)
		}
		m.status.Critical("ERROR: wp index out of bounds")
	}
}

func (m *Manager) sendMissionItemReached(seq uint16) {
	m.sender.Send(wire.MissionItemReached{Seq: seq})

	if m.verbose {
		zap.S().Debugf("WPM: Send MISSION_ITEM_REACHED reached_seq %d", seq)
	}
}

// ---- periodic ---------------------------------------------------------

// Tick drives progress broadcasts, retries, timeouts and cross-link change
// detection. It is called on every scheduler tick with the current monotonic
// time.
func (m *Manager) Tick(now time.Time) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()

	m.checkActiveMission()

	if res, ok := m.latestResult(); ok {
		m.shared.currentSeq = res.SeqCurrent

		if m.verbose {
			zap.S().Debugf("WPM: got mission result, new current_seq: %d", res.SeqCurrent)
		}

		if res.Reached {
			m.timeLastReached = now
			m.shared.lastReached = res.SeqReached
			m.sendMissionItemReached(uint16(res.SeqReached))
		} else {
			m.shared.lastReached = -1
		}

		m.sendMissionCurrent(m.shared.currentSeq)

		if res.ItemDoJumpChanged {
			// Re-send the item so the partner sees the remaining repeats.
			saved := m.missionType
			m.missionType = datamodel.ListMission
			m.sendMissionItem(m.partnerSysID, m.partnerCompID, uint16(res.ItemChangedIndex))
			m.missionType = saved
		}

	} else if m.currentLimiter.Check(now) {
		m.sendMissionCurrent(m.shared.currentSeq)

		// Repeat the reached notice a couple of times after the waypoint.
		if m.shared.lastReached >= 0 && now.Sub(m.timeLastReached) < reachedRepeatWindow {
			m.sendMissionItemReached(uint16(m.shared.lastReached))
		}
	}

	// Timed-out operations.
	switch {
	case m.state == PhaseGetList && !m.timeLastSent.IsZero() && now.Sub(m.timeLastSent) > m.retryTimeout:
		// Ask for the current item again.
		m.sendMissionRequest(m.partnerSysID, m.partnerCompID, uint16(m.transferSeq))

	case m.state == PhaseSendList && !m.timeLastSent.IsZero() && now.Sub(m.timeLastSent) > m.retryTimeout:
		if m.transferSeq == 0 {
			m.sendMissionCount(m.partnerSysID, m.partnerCompID, uint16(m.transferCount), m.missionType)
		} else {
			if m.verbose {
				zap.S().Debugf("WPM: item re-send timeout")
			}
			m.sendMissionItem(m.partnerSysID, m.partnerCompID, uint16(m.transferSeq-1))
		}

	case m.state != PhaseIdle && !m.timeLastRecv.IsZero() && now.Sub(m.timeLastRecv) > m.actionTimeout:
		m.status.Critical("Operation timeout")
		operationTimeouts.Inc()

		if m.verbose {
			zap.S().Debugf("WPM: Last operation (state=%d) timed out, changing state to IDLE", m.state)
		}

		m.switchToIdle()

		// We are giving up, so let another partner start a fresh transfer.
		m.shared.transferInProgress = false

	case m.state == PhaseIdle:
		m.timeLastSent = time.Time{}
		m.timeLastRecv = time.Time{}
	}
}

// latestResult drains the executor event channel, keeping only the newest.
func (m *Manager) latestResult() (datamodel.MissionResult, bool) {
	var res datamodel.MissionResult
	var ok bool
	for {
		select {
		case r := <-m.results:
			res = r
			ok = true
		default:
			return res, ok
		}
	}
}

// checkActiveMission notices a mission committed over a different link (the
// shared dataman id moved under us) and re-announces the count to our last
// partner so it can re-download.
func (m *Manager) checkActiveMission() {
	if m.myDatamanID == m.shared.datamanID {
		return
	}

	if m.verbose {
		zap.S().Debugf("WPM: New mission detected (possibly over different link instance), updating")
	}

	m.myDatamanID = m.shared.datamanID
	m.sendMissionCount(m.partnerSysID, m.partnerCompID,
		uint16(m.shared.count[datamodel.ListMission]), datamodel.ListMission)
}

func msgLabel(id wire.MsgID) string {
	switch id {
	case wire.MsgItem:
		return "item"
	case wire.MsgItemInt:
		return "item_int"
	case wire.MsgRequest:
		return "request"
	case wire.MsgRequestInt:
		return "request_int"
	case wire.MsgRequestList:
		return "request_list"
	case wire.MsgCount:
		return "count"
	case wire.MsgAck:
		return "ack"
	case wire.MsgSetCurrent:
		return "set_current"
	case wire.MsgClearAll:
		return "clear_all"
	}
	return "other"
}
