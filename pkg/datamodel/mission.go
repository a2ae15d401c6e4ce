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

package datamodel

// ListKind selects one of the three ordered item lists shared over the
// mission transfer channel.
type ListKind uint8

const (
	ListMission ListKind = 0
	ListFence   ListKind = 1
	ListRally   ListKind = 2
	// ListAll is only valid as a clear-command operand.
	ListAll ListKind = 255
)

func (k ListKind) String() string {
	switch k {
	case ListMission:
		return "mission"
	case ListFence:
		return "fence"
	case ListRally:
		return "rally"
	case ListAll:
		return "all"
	}
	return "unknown"
}

// ItemOrigin records where a stored item came from.
type ItemOrigin uint8

const (
	OriginLink    ItemOrigin = 0 // uploaded by a ground station over the link
	OriginOnboard ItemOrigin = 1
)

// MissionItem is the kind-agnostic internal item record. Exactly one command
// is meaningful per record; the command-specific fields are separate on
// purpose so that no two commands share a slot.
type MissionItem struct {
	Command      NavCmd     `json:"command"`
	Frame        CoordFrame `json:"frame"`
	Autocontinue bool       `json:"autocontinue"`
	Origin       ItemOrigin `json:"origin"`

	Lat                float64 `json:"lat"`
	Lon                float64 `json:"lon"`
	Altitude           float32 `json:"altitude"`
	AltitudeIsRelative bool    `json:"altitude_is_relative"`

	TimeInside       float32 `json:"time_inside,omitempty"`
	AcceptanceRadius float32 `json:"acceptance_radius,omitempty"`
	Yaw              float32 `json:"yaw,omitempty"` // radians, wrapped to (-pi, pi]
	LoiterRadius     float32 `json:"loiter_radius,omitempty"`
	LoiterExitXtrack bool    `json:"loiter_exit_xtrack,omitempty"`
	PitchMin         float32 `json:"pitch_min,omitempty"`
	ForceHeading     bool    `json:"force_heading,omitempty"`
	VertexCount      uint16  `json:"vertex_count,omitempty"`
	CircleRadius     float32 `json:"circle_radius,omitempty"`

	DoJumpMissionIndex uint16 `json:"do_jump_mission_index,omitempty"`
	DoJumpRepeatCount  uint16 `json:"do_jump_repeat_count,omitempty"`
	DoJumpCurrentCount uint16 `json:"do_jump_current_count,omitempty"`

	// Params holds the seven raw params of command-only items (FrameMission).
	Params [7]float32 `json:"params,omitempty"`
}

// MissionState is the single record in the mission state region. DatamanID
// selects which of the two mirrored waypoint regions is authoritative; it
// flips on every successful replacement or clear.
type MissionState struct {
	DatamanID  uint8 `json:"dataman_id"`
	Count      int   `json:"count"`
	CurrentSeq int   `json:"current_seq"`
}

// ListStats is the stats record at index 0 of the fence and rally regions.
// UpdateCounter is only used by the fence list; the navigator polls it to
// detect replacement.
type ListStats struct {
	NumItems      int    `json:"num_items"`
	UpdateCounter uint16 `json:"update_counter,omitempty"`
}

// FencePoint is the stored form of one geofence item.
type FencePoint struct {
	Command      NavCmd     `json:"command"`
	Frame        CoordFrame `json:"frame"`
	Lat          float64    `json:"lat"`
	Lon          float64    `json:"lon"`
	Alt          float32    `json:"alt"`
	VertexCount  uint16     `json:"vertex_count,omitempty"`
	CircleRadius float32    `json:"circle_radius,omitempty"`
}

// SafePoint is the stored form of one rally / safe point.
type SafePoint struct {
	Frame CoordFrame `json:"frame"`
	Lat   float64    `json:"lat"`
	Lon   float64    `json:"lon"`
	Alt   float32    `json:"alt"`
}

// MissionResult is the navigation executor's progress event.
type MissionResult struct {
	SeqCurrent        int  `json:"seq_current"`
	SeqReached        int  `json:"seq_reached"`
	Reached           bool `json:"reached"`
	ItemDoJumpChanged bool `json:"item_do_jump_changed"`
	ItemChangedIndex  int  `json:"item_changed_index"`
}

// MissionStateChanged is published on every mission commit and on
// set-current, so that consumers reload the active list.
type MissionStateChanged struct {
	TimestampMs uint64 `json:"timestamp_ms"`
	DatamanID   uint8  `json:"dataman_id"`
	Count       int    `json:"count"`
	CurrentSeq  int    `json:"current_seq"`
}
