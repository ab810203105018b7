package model

import "fmt"

// Color is an opaque 24-bit RGB colour.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex renders the colour as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Packed returns the colour as a 0xRRGGBB integer.
func (c Color) Packed() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// ColorFromPacked is the inverse of Packed; bits above 24 are ignored.
func ColorFromPacked(v uint32) Color {
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}
}

// Path is the most recently observed multi-hop route from an origin mote
// to the root. Motes always ends with the root mote ID.
type Path struct {
	Origin   int   `json:"origin"`
	Motes    []int `json:"motes"`
	HopCount int   `json:"hopCount"`
	Color    Color `json:"color"`
	Selected bool  `json:"selected"`
}

// Clone returns a deep copy of the path.
func (p *Path) Clone() Path {
	out := *p
	out.Motes = append([]int(nil), p.Motes...)
	return out
}
