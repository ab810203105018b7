package model

import "time"

// Message is one decoded data message received from the root mote's
// serial bridge.
//
// Path holds the chain of motes the message crossed, starting with the
// producer and excluding the root. PathQuality[i] is the link quality of
// hop i. Only the first HopCount entries of Path are meaningful.
type Message struct {
	Origin        int   `json:"origin"`
	XAcceleration int   `json:"x_acceleration"`
	YAcceleration int   `json:"y_acceleration"`
	ZAcceleration int   `json:"z_acceleration"`
	HopCount      int   `json:"hopcount"`
	Path          []int `json:"message_path"`
	PathQuality   []int `json:"path_quality"`
}

// Reading extracts the acceleration sample carried by the message.
func (m Message) Reading(at time.Time) Reading {
	return Reading{
		MoteID:     m.Origin,
		X:          m.XAcceleration,
		Y:          m.YAcceleration,
		Z:          m.ZAcceleration,
		ReceivedAt: at,
	}
}

// Reading is a single acceleration sample produced by a mote.
type Reading struct {
	MoteID     int       `json:"moteId"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Z          int       `json:"z"`
	ReceivedAt time.Time `json:"receivedAt"`
}
