package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

var (
	// ErrInvalidLine is returned for lines that are not a JSON message.
	ErrInvalidLine = errors.New("invalid message line")
	// ErrMissingOrigin is returned for messages without an origin field.
	ErrMissingOrigin = errors.New("message has no origin")
)

// wireMessage mirrors the acceleration_msg struct printed by the bridge.
type wireMessage struct {
	Origin        *int  `json:"origin"`
	XAcceleration int   `json:"x_acceleration"`
	YAcceleration int   `json:"y_acceleration"`
	ZAcceleration int   `json:"z_acceleration"`
	HopCount      int   `json:"hopcount"`
	MessagePath   []int `json:"message_path"`
	PathQuality   []int `json:"path_quality"`
}

// Decode parses one line from the bridge. Blank lines and lines that do not
// start with '{' (bridge chatter) yield ErrInvalidLine.
func Decode(line []byte) (model.Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return model.Message{}, ErrInvalidLine
	}

	var w wireMessage
	if err := json.Unmarshal(line, &w); err != nil {
		return model.Message{}, fmt.Errorf("%w: %v", ErrInvalidLine, err)
	}
	if w.Origin == nil {
		return model.Message{}, ErrMissingOrigin
	}
	return model.Message{
		Origin:        *w.Origin,
		XAcceleration: w.XAcceleration,
		YAcceleration: w.YAcceleration,
		ZAcceleration: w.ZAcceleration,
		HopCount:      w.HopCount,
		Path:          w.MessagePath,
		PathQuality:   w.PathQuality,
	}, nil
}

// Encode renders msg in the bridge's line format, without the newline.
func Encode(msg model.Message) ([]byte, error) {
	origin := msg.Origin
	return json.Marshal(wireMessage{
		Origin:        &origin,
		XAcceleration: msg.XAcceleration,
		YAcceleration: msg.YAcceleration,
		ZAcceleration: msg.ZAcceleration,
		HopCount:      msg.HopCount,
		MessagePath:   msg.Path,
		PathQuality:   msg.PathQuality,
	})
}
