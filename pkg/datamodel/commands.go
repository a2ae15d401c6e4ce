package datamodel

// NavCmd is a mission protocol command code. The values follow the common
// GCS command numbering so that captured traffic stays readable in standard
// tooling.
type NavCmd uint16

const (
	CmdNavWaypoint        NavCmd = 16
	CmdNavLoiterUnlimited NavCmd = 17
	CmdNavLoiterTime      NavCmd = 19
	CmdNavReturnToLaunch  NavCmd = 20
	CmdNavLand            NavCmd = 21
	CmdNavTakeoff         NavCmd = 22
	CmdNavLoiterToAlt     NavCmd = 31
	CmdNavRoi             NavCmd = 80
	CmdNavVtolTakeoff     NavCmd = 84
	CmdNavVtolLand        NavCmd = 85
	CmdNavDelay           NavCmd = 93

	CmdDoJump              NavCmd = 177
	CmdDoChangeSpeed       NavCmd = 178
	CmdDoSetServo          NavCmd = 183
	CmdDoLandStart         NavCmd = 189
	CmdDoSetRoi            NavCmd = 201
	CmdDoDigicamControl    NavCmd = 203
	CmdDoMountConfigure    NavCmd = 204
	CmdDoMountControl      NavCmd = 205
	CmdDoSetCamTriggDist   NavCmd = 206
	CmdDoSetCamTriggInt    NavCmd = 214
	CmdSetCameraMode       NavCmd = 530
	CmdImageStartCapture   NavCmd = 2000
	CmdImageStopCapture    NavCmd = 2001
	CmdDoTriggerControl    NavCmd = 2003
	CmdVideoStartCapture   NavCmd = 2500
	CmdVideoStopCapture    NavCmd = 2501
	CmdDoVtolTransition    NavCmd = 3000
	CmdFenceReturnPoint    NavCmd = 5000
	CmdFencePolygonInclude NavCmd = 5001
	CmdFencePolygonExclude NavCmd = 5002
	CmdFenceCircleInclude  NavCmd = 5003
	CmdFenceCircleExclude  NavCmd = 5004
	CmdNavRallyPoint       NavCmd = 5100

	// CmdInvalid marks an item record whose command could not be translated.
	CmdInvalid NavCmd = 0xFFFF
)

// CoordFrame is the coordinate frame of a wire item.
type CoordFrame uint8

const (
	FrameGlobal            CoordFrame = 0 // lat/lon, altitude above mean sea level
	FrameMission           CoordFrame = 2 // no coordinates, seven opaque params
	FrameGlobalRelativeAlt CoordFrame = 3 // lat/lon, altitude relative to home
	FrameGlobalInt         CoordFrame = 5
	FrameGlobalRelAltInt   CoordFrame = 6
)

// IsFenceCmd reports whether cmd is only valid inside a geofence list.
func IsFenceCmd(cmd NavCmd) bool {
	switch cmd {
	case CmdFenceReturnPoint, CmdFencePolygonInclude, CmdFencePolygonExclude,
		CmdFenceCircleInclude, CmdFenceCircleExclude:
		return true
	}
	return false
}

// IsPolygonCmd reports whether cmd is a fence polygon vertex.
func IsPolygonCmd(cmd NavCmd) bool {
	return cmd == CmdFencePolygonInclude || cmd == CmdFencePolygonExclude
}
