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

	"github.com/united-manufacturing-hub/mission-link/cmd/mission-manager/wire"
	"github.com/united-manufacturing-hub/mission-link/pkg/datamodel"
)

// coordScale converts between degrees and the scaled-integer wire form.
const coordScale = 1e7

// wireItem is the codec-independent view of an inbound item frame. The float
// and the scaled-integer messages normalize into it separately; the two are
// never reinterpreted into each other.
type wireItem struct {
	seq          uint16
	frame        datamodel.CoordFrame
	command      datamodel.NavCmd
	current      bool
	autocontinue bool
	param1       float32
	param2       float32
	param3       float32
	param4       float32
	x            float32
	y            float32
	xInt         int32
	yInt         int32
	z            float32
	kind         datamodel.ListKind
	intCoords    bool
}

func fromFloatItem(m wire.MissionItem) wireItem {
	return wireItem{
		seq:          m.Seq,
		frame:        m.Frame,
		command:      m.Command,
		current:      m.Current != 0,
		autocontinue: m.Autocontinue != 0,
		param1:       m.Param1,
		param2:       m.Param2,
		param3:       m.Param3,
		param4:       m.Param4,
		x:            m.X,
		y:            m.Y,
		z:            m.Z,
		kind:         m.Kind,
	}
}

func fromIntItem(m wire.MissionItemInt) wireItem {
	return wireItem{
		seq:          m.Seq,
		frame:        m.Frame,
		command:      m.Command,
		current:      m.Current != 0,
		autocontinue: m.Autocontinue != 0,
		param1:       m.Param1,
		param2:       m.Param2,
		param3:       m.Param3,
		param4:       m.Param4,
		xInt:         m.X,
		yInt:         m.Y,
		z:            m.Z,
		kind:         m.Kind,
		intCoords:    true,
	}
}

// wrapPi wraps an angle in radians into (-pi, pi].
func wrapPi(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

func yawFromDeg(deg float32) float32 {
	return float32(wrapPi(float64(deg) * math.Pi / 180))
}

func yawToDeg(rad float32) float32 {
	return float32(float64(rad) * 180 / math.Pi)
}

// translateItem converts a wire item into the internal record. A non-Accepted
// ack code means the item was rejected and the transfer must abort with that
// code.
func translateItem(it wireItem) (datamodel.MissionItem, wire.AckType) {
	var rec datamodel.MissionItem

	switch it.frame {
	case datamodel.FrameGlobal, datamodel.FrameGlobalRelativeAlt,
		datamodel.FrameGlobalInt, datamodel.FrameGlobalRelAltInt:

		isIntFrame := it.frame == datamodel.FrameGlobalInt || it.frame == datamodel.FrameGlobalRelAltInt
		if isIntFrame && !it.intCoords {
			return rec, wire.AckUnsupportedFrame
		}

		if it.intCoords {
			rec.Lat = float64(it.xInt) / coordScale
			rec.Lon = float64(it.yInt) / coordScale
		} else {
			rec.Lat = float64(it.x)
			rec.Lon = float64(it.y)
		}
		rec.Altitude = it.z
		rec.AltitudeIsRelative = it.frame == datamodel.FrameGlobalRelativeAlt ||
			it.frame == datamodel.FrameGlobalRelAltInt

		switch it.command {
		case datamodel.CmdNavWaypoint:
			rec.TimeInside = it.param1
			rec.AcceptanceRadius = it.param2
			rec.Yaw = yawFromDeg(it.param4)

		case datamodel.CmdNavLoiterUnlimited:
			rec.LoiterRadius = it.param3
			rec.Yaw = yawFromDeg(it.param4)

		case datamodel.CmdNavLoiterTime:
			rec.TimeInside = it.param1
			rec.LoiterRadius = it.param3
			rec.LoiterExitXtrack = it.param4 > 0

		case datamodel.CmdNavLand:
			rec.Yaw = yawFromDeg(it.param4)

		case datamodel.CmdNavTakeoff:
			rec.PitchMin = it.param1
			rec.Yaw = yawFromDeg(it.param4)

		case datamodel.CmdNavLoiterToAlt:
			rec.ForceHeading = it.param1 > 0
			rec.LoiterRadius = it.param2
			rec.LoiterExitXtrack = it.param4 > 0

		case datamodel.CmdNavVtolTakeoff, datamodel.CmdNavVtolLand:
			rec.Yaw = yawFromDeg(it.param4)

		case datamodel.CmdFenceReturnPoint:

		case datamodel.CmdFencePolygonInclude, datamodel.CmdFencePolygonExclude:
			rec.VertexCount = uint16(it.param1 + 0.5)

		case datamodel.CmdFenceCircleInclude, datamodel.CmdFenceCircleExclude:
			rec.CircleRadius = it.param1

		case datamodel.CmdNavRallyPoint:

		default:
			rec.Command = datamodel.CmdInvalid
			return rec, wire.AckUnsupported
		}

		rec.Command = it.command
		rec.Frame = it.frame

	case datamodel.FrameMission:
		// Command-only item, no coordinates.
		rec.Params[0] = it.param1
		rec.Params[1] = it.param2
		rec.Params[2] = it.param3
		rec.Params[3] = it.param4
		if it.intCoords {
			rec.Params[4] = float32(it.xInt)
			rec.Params[5] = float32(it.yInt)
		} else {
			rec.Params[4] = it.x
			rec.Params[5] = it.y
		}
		rec.Params[6] = it.z

		switch it.command {
		case datamodel.CmdDoJump:
			rec.DoJumpMissionIndex = uint16(it.param1)
			rec.DoJumpCurrentCount = 0
			rec.DoJumpRepeatCount = uint16(it.param2)

		case datamodel.CmdDoChangeSpeed, datamodel.CmdDoSetServo,
			datamodel.CmdDoLandStart, datamodel.CmdDoTriggerControl,
			datamodel.CmdDoDigicamControl, datamodel.CmdDoMountConfigure,
			datamodel.CmdDoMountControl, datamodel.CmdImageStartCapture,
			datamodel.CmdImageStopCapture, datamodel.CmdVideoStartCapture,
			datamodel.CmdVideoStopCapture, datamodel.CmdDoSetRoi,
			datamodel.CmdNavRoi, datamodel.CmdDoSetCamTriggDist,
			datamodel.CmdDoSetCamTriggInt, datamodel.CmdSetCameraMode,
			datamodel.CmdDoVtolTransition, datamodel.CmdNavDelay,
			datamodel.CmdNavReturnToLaunch:

		default:
			rec.Command = datamodel.CmdInvalid
			return rec, wire.AckUnsupported
		}

		rec.Command = it.command
		rec.Frame = datamodel.FrameMission

	default:
		return rec, wire.AckUnsupportedFrame
	}

	rec.Autocontinue = it.autocontinue
	rec.Origin = datamodel.OriginLink

	return rec, wire.AckAccepted
}

// formatItem converts an internal record back into a wire message, choosing
// the coordinate encoding by intMode and the frame by the altitude reference.
func formatItem(rec *datamodel.MissionItem, target wire.Target, seq uint16, current bool, kind datamodel.ListKind, intMode bool) (wire.Message, bool) {
	var p1, p2, p3, p4, x, y, z float32
	var xi, yi int32
	frame := rec.Frame

	if rec.Frame == datamodel.FrameMission {
		p1 = rec.Params[0]
		p2 = rec.Params[1]
		p3 = rec.Params[2]
		p4 = rec.Params[3]
		x = rec.Params[4]
		y = rec.Params[5]
		z = rec.Params[6]

		switch rec.Command {
		case datamodel.CmdDoJump:
			p1 = float32(rec.DoJumpMissionIndex)
			p2 = float32(rec.DoJumpRepeatCount)

		case datamodel.CmdDoChangeSpeed, datamodel.CmdDoSetServo,
			datamodel.CmdDoLandStart, datamodel.CmdDoTriggerControl,
			datamodel.CmdDoDigicamControl, datamodel.CmdDoMountConfigure,
			datamodel.CmdDoMountControl, datamodel.CmdImageStartCapture,
			datamodel.CmdImageStopCapture, datamodel.CmdVideoStartCapture,
			datamodel.CmdVideoStopCapture, datamodel.CmdDoSetRoi,
			datamodel.CmdNavRoi, datamodel.CmdDoSetCamTriggDist,
			datamodel.CmdDoSetCamTriggInt, datamodel.CmdSetCameraMode,
			datamodel.CmdDoVtolTransition, datamodel.CmdNavDelay,
			datamodel.CmdNavReturnToLaunch:

		default:
			return nil, false
		}

		if intMode {
			xi = int32(x)
			yi = int32(y)
		}

	} else {
		if intMode {
			xi = int32(math.Round(rec.Lat * coordScale))
			yi = int32(math.Round(rec.Lon * coordScale))
		} else {
			x = float32(rec.Lat)
			y = float32(rec.Lon)
		}
		z = rec.Altitude

		if rec.AltitudeIsRelative {
			frame = datamodel.FrameGlobalRelativeAlt
			if intMode {
				frame = datamodel.FrameGlobalRelAltInt
			}
		} else {
			frame = datamodel.FrameGlobal
			if intMode {
				frame = datamodel.FrameGlobalInt
			}
		}

		switch rec.Command {
		case datamodel.CmdNavWaypoint:
			p1 = rec.TimeInside
			p2 = rec.AcceptanceRadius
			p4 = yawToDeg(rec.Yaw)

		case datamodel.CmdNavLoiterUnlimited:
			p3 = rec.LoiterRadius
			p4 = yawToDeg(rec.Yaw)

		case datamodel.CmdNavLoiterTime:
			p1 = rec.TimeInside
			p3 = rec.LoiterRadius
			p4 = boolToFloat(rec.LoiterExitXtrack)

		case datamodel.CmdNavLand:
			p4 = yawToDeg(rec.Yaw)

		case datamodel.CmdNavTakeoff:
			p1 = rec.PitchMin
			p4 = yawToDeg(rec.Yaw)

		case datamodel.CmdNavLoiterToAlt:
			p1 = boolToFloat(rec.ForceHeading)
			p2 = rec.LoiterRadius
			p4 = boolToFloat(rec.LoiterExitXtrack)

		case datamodel.CmdNavVtolTakeoff, datamodel.CmdNavVtolLand:
			p4 = yawToDeg(rec.Yaw)

		case datamodel.CmdFenceReturnPoint:

		case datamodel.CmdFencePolygonInclude, datamodel.CmdFencePolygonExclude:
			p1 = float32(rec.VertexCount)

		case datamodel.CmdFenceCircleInclude, datamodel.CmdFenceCircleExclude:
			p1 = rec.CircleRadius

		case datamodel.CmdNavRallyPoint:

		default:
			return nil, false
		}
	}

	var cur, autoc uint8
	if current {
		cur = 1
	}
	if rec.Autocontinue {
		autoc = 1
	}

	if intMode {
		return wire.MissionItemInt{
			TargetSystem:    target.System,
			TargetComponent: target.Component,
			Seq:             seq,
			Frame:           frame,
			Command:         rec.Command,
			Current:         cur,
			Autocontinue:    autoc,
			Param1:          p1,
			Param2:          p2,
			Param3:          p3,
			Param4:          p4,
			X:               xi,
			Y:               yi,
			Z:               z,
			Kind:            kind,
		}, true
	}
	return wire.MissionItem{
		TargetSystem:    target.System,
		TargetComponent: target.Component,
		Seq:             seq,
		Frame:           frame,
		Command:         rec.Command,
		Current:         cur,
		Autocontinue:    autoc,
		Param1:          p1,
		Param2:          p2,
		Param3:          p3,
		Param4:          p4,
		X:               x,
		Y:               y,
		Z:               z,
		Kind:            kind,
	}, true
}

func boolToFloat(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
