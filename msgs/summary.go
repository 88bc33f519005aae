package msgs

// IMPORT REQUIRED PACKAGES.

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DEFINE PUBLIC STRUCTURES.

// JSONFloat32 marshals non-finite values as strings so sensor readings
// such as out of range lidar beams survive a JSON log formatter.
type JSONFloat32 struct {
	F float32
}

// DEFINE PUBLIC STATIC FUNCTIONS.

// Summarize returns log fields describing m without its bulk payload.
func Summarize(m Message) logrus.Fields {
	f := logrus.Fields{"kind": m.Kind().String()}
	switch m := m.(type) {
	case *CameraFrame:
		f["size"] = sizeString(m.CameraFormat.Size)
		f["pixel_format"] = m.CameraFormat.PixelFormat.String()
		f["converted"] = m.Converted
		f["bytes"] = len(m.Data)
		f["timestamp"] = m.Timestamp
	case *DepthCameraFrame:
		f["size"] = sizeString(m.CameraFormat.Size)
		f["pixel_format"] = m.CameraFormat.PixelFormat.String()
		f["min"] = JSONFloat32{m.Min}
		f["max"] = JSONFloat32{m.Max}
		f["timestamp"] = m.Timestamp
	case *ImageWithBoundingBoxes:
		f["size"] = sizeString(m.Image.Size)
		f["converted"] = m.Image.Converted
		f["boxes"] = len(m.BoundingBoxes)
		f["timestamp"] = m.Timestamp
	case *ImageWithHumans:
		f["size"] = sizeString(m.Image.Size)
		f["converted"] = m.Image.Converted
		f["humans"] = len(m.Humans)
		f["timestamp"] = m.Timestamp
	case *ImuFrame:
		q := m.Orientation
		f["orientation"] = []JSONFloat32{{q.W}, {q.X}, {q.Y}, {q.Z}}
		f["timestamp"] = m.Timestamp
	case *LidarFrame:
		f["beams"] = m.NumBeams()
		f["range_min"] = JSONFloat32{m.RangeMin}
		f["range_max"] = JSONFloat32{m.RangeMax}
		f["timestamp"] = m.Timestamp
	case *PointcloudFrame:
		if n, err := m.NumPoints(); err == nil {
			f["points"] = n
		}
		f["timestamp"] = m.Timestamp
	case *OccupancyGridMap:
		f["size"] = sizeString(m.Size)
		f["resolution"] = JSONFloat32{m.Resolution}
		f["timestamp"] = m.Timestamp
	case *PosefWithTimestamp:
		f["x"] = JSONFloat32{m.Pose.Position.X}
		f["y"] = JSONFloat32{m.Pose.Position.Y}
		f["theta"] = JSONFloat32{m.Pose.Theta}
		f["timestamp"] = m.Timestamp
	}
	return f
}

// DEFINE PRIVATE STATIC FUNCTIONS.

func sizeString(s Sizei) string {
	return strconv.Itoa(int(s.Width)) + "x" + strconv.Itoa(int(s.Height))
}

// DEFINE PUBLIC RECEIVER FUNCTIONS.

func (f JSONFloat32) String() string {
	return strconv.FormatFloat(float64(f.F), 'f', 5, 32)
}

func (f JSONFloat32) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f.F)) {
		return json.Marshal("nan")
	} else if math.IsInf(float64(f.F), 1) {
		return json.Marshal("+inf")
	} else if math.IsInf(float64(f.F), -1) {
		return json.Marshal("-inf")
	}
	return json.Marshal(f.F)
}

// ALL DONE.
