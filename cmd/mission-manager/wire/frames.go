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

// Package wire defines the mission transfer frames exchanged over the
// telemetry link and their binary encoding.
package wire

import "github.com/united-manufacturing-hub/mission-link/pkg/datamodel"

// MsgID identifies a frame payload. The numbering matches the common GCS
// message set so captures stay recognizable.
type MsgID uint8

const (
	MsgItem        MsgID = 39
	MsgRequest     MsgID = 40
	MsgSetCurrent  MsgID = 41
	MsgCurrent     MsgID = 42
	MsgRequestList MsgID = 43
	MsgCount       MsgID = 44
	MsgClearAll    MsgID = 45
	MsgItemReached MsgID = 46
	MsgAck         MsgID = 47
	MsgRequestInt  MsgID = 51
	MsgItemInt     MsgID = 73
)

// AckType is the transfer result taxonomy carried in MissionAck.
type AckType uint8

const (
	AckAccepted         AckType = 0
	AckError            AckType = 1
	AckUnsupportedFrame AckType = 2
	AckUnsupported      AckType = 3
	AckNoSpace          AckType = 4
	AckInvalid          AckType = 5
	AckInvalidParam1    AckType = 6
	AckInvalidParam2    AckType = 7
	AckInvalidParam3    AckType = 8
	AckInvalidParam4    AckType = 9
	AckInvalidParam5    AckType = 10
	AckInvalidParam6    AckType = 11
	AckInvalidParam7    AckType = 12
	AckInvalidSequence  AckType = 13
	AckDenied           AckType = 14
)

// Message is one decoded frame payload.
type Message interface {
	ID() MsgID
}

// Frame is a decoded link frame: the sender identity plus the payload.
type Frame struct {
	SysID  uint8
	CompID uint8
	Msg    Message
}

// Target is the addressed endpoint of a directed frame.
type Target struct {
	System    uint8
	Component uint8
}

// MissionCount announces how many items the sender wants to transfer.
type MissionCount struct {
	TargetSystem    uint8
	TargetComponent uint8
	Count           uint16
	Kind            datamodel.ListKind
}

// MissionRequestList asks the receiver to start a download.
type MissionRequestList struct {
	TargetSystem    uint8
	TargetComponent uint8
	Kind            datamodel.ListKind
}

// MissionRequest asks for one item, float coordinate encoding.
type MissionRequest struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
	Kind            datamodel.ListKind
}

// MissionRequestInt asks for one item, scaled-integer coordinate encoding.
type MissionRequestInt struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
	Kind            datamodel.ListKind
}

// MissionItem carries one item with float32 degree coordinates in X/Y.
type MissionItem struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
	Frame           datamodel.CoordFrame
	Command         datamodel.NavCmd
	Current         uint8
	Autocontinue    uint8
	Param1          float32
	Param2          float32
	Param3          float32
	Param4          float32
	X               float32
	Y               float32
	Z               float32
	Kind            datamodel.ListKind
}

// MissionItemInt carries one item with X/Y as degrees scaled by 1e7 in int32.
// Same layout as MissionItem apart from the X/Y type; it is decoded by its
// own reader, never by reinterpreting a MissionItem.
type MissionItemInt struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
	Frame           datamodel.CoordFrame
	Command         datamodel.NavCmd
	Current         uint8
	Autocontinue    uint8
	Param1          float32
	Param2          float32
	Param3          float32
	Param4          float32
	X               int32
	Y               int32
	Z               float32
	Kind            datamodel.ListKind
}

// MissionAck terminates or answers a transfer step.
type MissionAck struct {
	TargetSystem    uint8
	TargetComponent uint8
	Type            AckType
	Kind            datamodel.ListKind
}

// MissionCurrent broadcasts the currently executing mission index.
type MissionCurrent struct {
	Seq uint16
}

// MissionItemReached broadcasts a reached mission index.
type MissionItemReached struct {
	Seq uint16
}

// MissionSetCurrent selects the index the executor should jump to.
type MissionSetCurrent struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
}

// MissionClearAll clears one list kind, or all of them.
type MissionClearAll struct {
	TargetSystem    uint8
	TargetComponent uint8
	Kind            datamodel.ListKind
}

func (MissionCount) ID() MsgID       { return MsgCount }
func (MissionRequestList) ID() MsgID { return MsgRequestList }
func (MissionRequest) ID() MsgID     { return MsgRequest }
func (MissionRequestInt) ID() MsgID  { return MsgRequestInt }
func (MissionItem) ID() MsgID        { return MsgItem }
func (MissionItemInt) ID() MsgID     { return MsgItemInt }
func (MissionAck) ID() MsgID         { return MsgAck }
func (MissionCurrent) ID() MsgID     { return MsgCurrent }
func (MissionItemReached) ID() MsgID { return MsgItemReached }
func (MissionSetCurrent) ID() MsgID  { return MsgSetCurrent }
func (MissionClearAll) ID() MsgID    { return MsgClearAll }

// TargetOf returns the addressed endpoint of a directed message. Broadcast
// payloads (MissionCurrent, MissionItemReached) return ok=false.
func TargetOf(m Message) (Target, bool) {
	switch t := m.(type) {
	case MissionCount:
		return Target{t.TargetSystem, t.TargetComponent}, true
	case MissionRequestList:
		return Target{t.TargetSystem, t.TargetComponent}, true
	case MissionRequest:
		return Target{t.TargetSystem, t.TargetComponent}, true
	case MissionRequestInt:
		return Target{t.TargetSystem, t.TargetComponent}, true
	case MissionItem:
		return Target{t.TargetSystem, t.TargetComponent}, true
	case MissionItemInt:
		return Target{t.TargetSystem, t.TargetComponent}, true
	case MissionAck:
		return Target{t.TargetSystem, t.TargetComponent}, true
	case MissionSetCurrent:
		return Target{t.TargetSystem, t.TargetComponent}, true
	case MissionClearAll:
		return Target{t.TargetSystem, t.TargetComponent}, true
	}
	return Target{}, false
}
