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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/united-manufacturing-hub/mission-link/cmd/mission-manager/wire"
	"github.com/united-manufacturing-hub/mission-link/pkg/datamodel"
)

func TestTranslateNavigationCommands(t *testing.T) {
	testCases := []struct {
		name     string
		input    wire.MissionItem
		expected func(t *testing.T, rec datamodel.MissionItem)
		wantAck  wire.AckType
	}{
		{
			name: "waypoint",
			input: wire.MissionItem{
				Frame: datamodel.FrameGlobal, Command: datamodel.CmdNavWaypoint,
				Param1: 5, Param2: 30, Param4: 90,
				X: 47.5, Y: 8.5, Z: 100,
			},
			expected: func(t *testing.T, rec datamodel.MissionItem) {
				assert.InDelta(t, 47.5, rec.Lat, 1e-9)
				assert.InDelta(t, 8.5, rec.Lon, 1e-9)
				assert.Equal(t, float32(100), rec.Altitude)
				assert.False(t, rec.AltitudeIsRelative)
				assert.Equal(t, float32(5), rec.TimeInside)
				assert.Equal(t, float32(30), rec.AcceptanceRadius)
				assert.InDelta(t, math.Pi/2, float64(rec.Yaw), 1e-6)
			},
			wantAck: wire.AckAccepted,
		},
		{
			name: "loiter unlimited",
			input: wire.MissionItem{
				Frame: datamodel.FrameGlobalRelativeAlt, Command: datamodel.CmdNavLoiterUnlimited,
				Param3: 80, Param4: -90,
			},
			expected: func(t *testing.T, rec datamodel.MissionItem) {
				assert.True(t, rec.AltitudeIsRelative)
				assert.Equal(t, float32(80), rec.LoiterRadius)
				assert.InDelta(t, -math.Pi/2, float64(rec.Yaw), 1e-6)
			},
			wantAck: wire.AckAccepted,
		},
		{
			name: "loiter time",
			input: wire.MissionItem{
				Frame: datamodel.FrameGlobal, Command: datamodel.CmdNavLoiterTime,
				Param1: 30, Param3: 50, Param4: 1,
			},
			expected: func(t *testing.T, rec datamodel.MissionItem) {
				assert.Equal(t, float32(30), rec.TimeInside)
				assert.Equal(t, float32(50), rec.LoiterRadius)
				assert.True(t, rec.LoiterExitXtrack)
			},
			wantAck: wire.AckAccepted,
		},
		{
			name: "takeoff",
			input: wire.MissionItem{
				Frame: datamodel.FrameGlobal, Command: datamodel.CmdNavTakeoff,
				Param1: 15,
			},
			expected: func(t *testing.T, rec datamodel.MissionItem) {
				assert.Equal(t, float32(15), rec.PitchMin)
				// TimeInside stays at its zero default, it no longer aliases
				// PitchMin in the record.
				assert.Equal(t, float32(0), rec.TimeInside)
			},
			wantAck: wire.AckAccepted,
		},
		{
			name: "loiter to alt",
			input: wire.MissionItem{
				Frame: datamodel.FrameGlobal, Command: datamodel.CmdNavLoiterToAlt,
				Param1: 1, Param2: 60, Param4: 0,
			},
			expected: func(t *testing.T, rec datamodel.MissionItem) {
				assert.True(t, rec.ForceHeading)
				assert.Equal(t, float32(60), rec.LoiterRadius)
				assert.False(t, rec.LoiterExitXtrack)
			},
			wantAck: wire.AckAccepted,
		},
		{
			name: "polygon vertex count rounds",
			input: wire.MissionItem{
				Frame: datamodel.FrameGlobal, Command: datamodel.CmdFencePolygonInclude,
				Param1: 3.7,
			},
			expected: func(t *testing.T, rec datamodel.MissionItem) {
				assert.Equal(t, uint16(4), rec.VertexCount)
			},
			wantAck: wire.AckAccepted,
		},
		{
			name: "fence circle",
			input: wire.MissionItem{
				Frame: datamodel.FrameGlobal, Command: datamodel.CmdFenceCircleExclude,
				Param1: 120,
			},
			expected: func(t *testing.T, rec datamodel.MissionItem) {
				assert.Equal(t, float32(120), rec.CircleRadius)
			},
			wantAck: wire.AckAccepted,
		},
		{
			name: "do jump",
			input: wire.MissionItem{
				Frame: datamodel.FrameMission, Command: datamodel.CmdDoJump,
				Param1: 3, Param2: 2,
			},
			expected: func(t *testing.T, rec datamodel.MissionItem) {
				assert.Equal(t, uint16(3), rec.DoJumpMissionIndex)
				assert.Equal(t, uint16(2), rec.DoJumpRepeatCount)
				assert.Equal(t, uint16(0), rec.DoJumpCurrentCount)
			},
			wantAck: wire.AckAccepted,
		},
		{
			name: "pass-through command keeps raw params",
			input: wire.MissionItem{
				Frame: datamodel.FrameMission, Command: datamodel.CmdDoChangeSpeed,
				Param1: 1, Param2: 12.5, Param3: -1, Param4: 0,
				X: 4, Y: 5, Z: 6,
			},
			expected: func(t *testing.T, rec datamodel.MissionItem) {
				assert.Equal(t, [7]float32{1, 12.5, -1, 0, 4, 5, 6}, rec.Params)
			},
			wantAck: wire.AckAccepted,
		},
		{
			name: "unsupported command",
			input: wire.MissionItem{
				Frame: datamodel.FrameGlobal, Command: datamodel.NavCmd(999),
			},
			wantAck: wire.AckUnsupported,
		},
		{
			name: "unsupported mission-frame command",
			input: wire.MissionItem{
				Frame: datamodel.FrameMission, Command: datamodel.NavCmd(999),
			},
			wantAck: wire.AckUnsupported,
		},
		{
			name: "unsupported frame",
			input: wire.MissionItem{
				Frame: datamodel.CoordFrame(12), Command: datamodel.CmdNavWaypoint,
			},
			wantAck: wire.AckUnsupportedFrame,
		},
		{
			name: "int frame in float item",
			input: wire.MissionItem{
				Frame: datamodel.FrameGlobalInt, Command: datamodel.CmdNavWaypoint,
			},
			wantAck: wire.AckUnsupportedFrame,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec, ack := translateItem(fromFloatItem(tc.input))
			assert.Equal(t, tc.wantAck, ack)
			if tc.wantAck == wire.AckAccepted {
				assert.Equal(t, tc.input.Command, rec.Command)
				assert.Equal(t, datamodel.OriginLink, rec.Origin)
				if tc.expected != nil {
					tc.expected(t, rec)
				}
			}
		})
	}
}

func TestTranslateIntCoordinates(t *testing.T) {
	rec, ack := translateItem(fromIntItem(wire.MissionItemInt{
		Frame: datamodel.FrameGlobalRelAltInt, Command: datamodel.CmdNavWaypoint,
		X: 473977420, Y: 85462960, Z: 10,
	}))
	require.Equal(t, wire.AckAccepted, ack)

	assert.InDelta(t, 47.3977420, rec.Lat, 1e-9)
	assert.InDelta(t, 8.5462960, rec.Lon, 1e-9)
	assert.Equal(t, float32(10), rec.Altitude)
	assert.True(t, rec.AltitudeIsRelative)
}

func TestTranslateIntItemWithFloatFrame(t *testing.T) {
	// An int-encoded item may carry the non-int global frame; coordinates are
	// still scaled integers.
	rec, ack := translateItem(fromIntItem(wire.MissionItemInt{
		Frame: datamodel.FrameGlobal, Command: datamodel.CmdNavWaypoint,
		X: 473977420, Y: 85462960,
	}))
	require.Equal(t, wire.AckAccepted, ack)
	assert.InDelta(t, 47.3977420, rec.Lat, 1e-9)
	assert.False(t, rec.AltitudeIsRelative)
}

func TestWrapPi(t *testing.T) {
	testCases := []struct {
		input    float64
		expected float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{5 * math.Pi, math.Pi},
	}
	for _, tc := range testCases {
		assert.InDelta(t, tc.expected, wrapPi(tc.input), 1e-9, "wrapPi(%v)", tc.input)
	}
}

func TestFormatItemRoundTrip(t *testing.T) {
	original := wire.MissionItem{
		TargetSystem: 255, TargetComponent: 190, Seq: 4,
		Frame: datamodel.FrameGlobalRelativeAlt, Command: datamodel.CmdNavWaypoint,
		Autocontinue: 1,
		Param1:       5, Param2: 30, Param4: 45,
		X: 47.3977420, Y: 8.5462960, Z: 25,
		Kind: datamodel.ListMission,
	}

	rec, ack := translateItem(fromFloatItem(original))
	require.Equal(t, wire.AckAccepted, ack)

	target := wire.Target{System: 255, Component: 190}

	// Float mode reproduces the float message.
	msg, ok := formatItem(&rec, target, 4, false, datamodel.ListMission, false)
	require.True(t, ok)
	floatItem, ok := msg.(wire.MissionItem)
	require.True(t, ok)
	assert.Equal(t, original.Frame, floatItem.Frame)
	assert.Equal(t, original.Command, floatItem.Command)
	assert.InDelta(t, original.X, floatItem.X, 1e-5)
	assert.InDelta(t, original.Y, floatItem.Y, 1e-5)
	assert.InDelta(t, original.Param4, floatItem.Param4, 1e-3)

	// Int mode carries the same coordinate at 1e-7 degree resolution.
	msg, ok = formatItem(&rec, target, 4, false, datamodel.ListMission, true)
	require.True(t, ok)
	intItem, ok := msg.(wire.MissionItemInt)
	require.True(t, ok)
	assert.Equal(t, datamodel.FrameGlobalRelAltInt, intItem.Frame)
	// The float32 wire coordinate limits the precision here, not the
	// scaled-integer form.
	assert.InDelta(t, 473977420, float64(intItem.X), 64)
	assert.InDelta(t, 85462960, float64(intItem.Y), 64)

	// And decoding the int item again stays within 1e-7 degrees.
	recBack, ack := translateItem(fromIntItem(intItem))
	require.Equal(t, wire.AckAccepted, ack)
	assert.InDelta(t, rec.Lat, recBack.Lat, 1e-7)
	assert.InDelta(t, rec.Lon, recBack.Lon, 1e-7)
}

func TestFormatItemDoJump(t *testing.T) {
	rec := datamodel.MissionItem{
		Command:            datamodel.CmdDoJump,
		Frame:              datamodel.FrameMission,
		DoJumpMissionIndex: 2,
		DoJumpRepeatCount:  3,
	}

	msg, ok := formatItem(&rec, wire.Target{System: 1, Component: 1}, 0, false, datamodel.ListMission, false)
	require.True(t, ok)
	item, ok := msg.(wire.MissionItem)
	require.True(t, ok)

	assert.Equal(t, datamodel.FrameMission, item.Frame)
	assert.Equal(t, float32(2), item.Param1)
	assert.Equal(t, float32(3), item.Param2)
}

func TestFormatItemUnknownCommand(t *testing.T) {
	rec := datamodel.MissionItem{Command: datamodel.CmdInvalid, Frame: datamodel.FrameMission}
	_, ok := formatItem(&rec, wire.Target{}, 0, false, datamodel.ListMission, false)
	assert.False(t, ok)
}
