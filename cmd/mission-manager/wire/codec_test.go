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

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/united-manufacturing-hub/mission-link/pkg/datamodel"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		msg  Message
	}{
		{
			name: "count",
			msg:  MissionCount{TargetSystem: 1, TargetComponent: 1, Count: 42, Kind: datamodel.ListMission},
		},
		{
			name: "request list",
			msg:  MissionRequestList{TargetSystem: 1, TargetComponent: 190, Kind: datamodel.ListFence},
		},
		{
			name: "request",
			msg:  MissionRequest{TargetSystem: 1, TargetComponent: 1, Seq: 7, Kind: datamodel.ListRally},
		},
		{
			name: "request int",
			msg:  MissionRequestInt{TargetSystem: 1, TargetComponent: 1, Seq: 8, Kind: datamodel.ListMission},
		},
		{
			name: "item",
			msg: MissionItem{
				TargetSystem: 1, TargetComponent: 1, Seq: 3,
				Frame:   datamodel.FrameGlobalRelativeAlt,
				Command: datamodel.CmdNavWaypoint,
				Current: 1, Autocontinue: 1,
				Param1: 5, Param2: 25, Param4: 90,
				X: 47.3977, Y: 8.5456, Z: 10,
				Kind: datamodel.ListMission,
			},
		},
		{
			name: "item int",
			msg: MissionItemInt{
				TargetSystem: 1, TargetComponent: 1, Seq: 3,
				Frame:   datamodel.FrameGlobalRelAltInt,
				Command: datamodel.CmdNavWaypoint,
				X:       473977420, Y: 85462960, Z: 10,
				Kind: datamodel.ListMission,
			},
		},
		{
			name: "ack",
			msg:  MissionAck{TargetSystem: 255, TargetComponent: 190, Type: AckAccepted, Kind: datamodel.ListAll},
		},
		{
			name: "current",
			msg:  MissionCurrent{Seq: 11},
		},
		{
			name: "item reached",
			msg:  MissionItemReached{Seq: 12},
		},
		{
			name: "set current",
			msg:  MissionSetCurrent{TargetSystem: 1, TargetComponent: 1, Seq: 2},
		},
		{
			name: "clear all",
			msg:  MissionClearAll{TargetSystem: 1, TargetComponent: 1, Kind: datamodel.ListAll},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(Frame{SysID: 255, CompID: 190, Msg: tc.msg})
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)

			assert.Equal(t, uint8(255), decoded.SysID)
			assert.Equal(t, uint8(190), decoded.CompID)
			assert.Equal(t, tc.msg, decoded.Msg)
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrShortFrame)

	_, err = Decode([]byte{0x00, byte(MsgCount), 1, 1, 0, 0, 0})
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = Decode([]byte{frameMagic, 0xEE, 1, 1})
	assert.ErrorIs(t, err, ErrUnknownMsg)

	// truncated payload
	_, err = Decode([]byte{frameMagic, byte(MsgCount), 1, 1, 0})
	assert.Error(t, err)

	// trailing bytes after a complete payload
	data, err := Encode(Frame{SysID: 1, CompID: 1, Msg: MissionCurrent{Seq: 1}})
	require.NoError(t, err)
	_, err = Decode(append(data, 0x00))
	assert.ErrorIs(t, err, ErrTrailing)
}

func TestItemIntIsNotPunnedFromItem(t *testing.T) {
	// The same coordinate encoded in both variants must decode to different
	// payload types with their own X/Y interpretation.
	floatData, err := Encode(Frame{SysID: 1, CompID: 1, Msg: MissionItem{
		Frame: datamodel.FrameGlobal, Command: datamodel.CmdNavWaypoint,
		X: 47.39, Y: 8.54, Kind: datamodel.ListMission,
	}})
	require.NoError(t, err)

	intData, err := Encode(Frame{SysID: 1, CompID: 1, Msg: MissionItemInt{
		Frame: datamodel.FrameGlobalInt, Command: datamodel.CmdNavWaypoint,
		X: 473900000, Y: 85400000, Kind: datamodel.ListMission,
	}})
	require.NoError(t, err)

	assert.Equal(t, len(floatData), len(intData))

	decodedFloat, err := Decode(floatData)
	require.NoError(t, err)
	item, ok := decodedFloat.Msg.(MissionItem)
	require.True(t, ok)
	assert.InDelta(t, 47.39, item.X, 1e-4)

	decodedInt, err := Decode(intData)
	require.NoError(t, err)
	itemInt, ok := decodedInt.Msg.(MissionItemInt)
	require.True(t, ok)
	assert.Equal(t, int32(473900000), itemInt.X)
}

func TestTargetOf(t *testing.T) {
	target, ok := TargetOf(MissionCount{TargetSystem: 3, TargetComponent: 4})
	require.True(t, ok)
	assert.Equal(t, Target{System: 3, Component: 4}, target)

	_, ok = TargetOf(MissionCurrent{Seq: 1})
	assert.False(t, ok)

	_, ok = TargetOf(MissionItemReached{Seq: 1})
	assert.False(t, ok)
}
