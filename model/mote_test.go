package model

import "testing"

func TestFootprintBoxIsCentred(t *testing.T) {
	fp := Footprint{Width: 20, Height: 10}
	box := fp.BoxAt(Position{X: 100, Y: 50})

	want := Rect{MinX: 90, MinY: 45, MaxX: 110, MaxY: 55}
	if box != want {
		t.Fatalf("BoxAt() = %+v, want %+v", box, want)
	}
	if !box.Contains(Position{X: 100, Y: 50}) {
		t.Fatalf("box should contain its centre")
	}
	if box.Contains(Position{X: 110, Y: 50}) {
		t.Fatalf("box should not contain its right edge")
	}
}

func TestRectIntersects(t *testing.T) {
	fp := Footprint{Width: 10, Height: 10}
	a := fp.BoxAt(Position{X: 50, Y: 50})

	cases := []struct {
		name string
		at   Position
		want bool
	}{
		{name: "same centre", at: Position{X: 50, Y: 50}, want: true},
		{name: "overlap on both axes", at: Position{X: 55, Y: 58}, want: true},
		{name: "touching edge", at: Position{X: 60, Y: 50}, want: false},
		{name: "overlap on x only", at: Position{X: 52, Y: 80}, want: false},
		{name: "overlap on y only", at: Position{X: 90, Y: 52}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := fp.BoxAt(tc.at)
			if got := a.Intersects(b); got != tc.want {
				t.Fatalf("Intersects() = %v, want %v", got, tc.want)
			}
			if got := b.Intersects(a); got != tc.want {
				t.Fatalf("Intersects() not symmetric: %v", got)
			}
		})
	}
}

func TestColorHexRoundTrip(t *testing.T) {
	c := Color{R: 0x12, G: 0xab, B: 0x0f}
	if got := c.Hex(); got != "#12ab0f" {
		t.Fatalf("Hex() = %q", got)
	}
	if got := ColorFromPacked(c.Packed()); got != c {
		t.Fatalf("ColorFromPacked(Packed()) = %+v, want %+v", got, c)
	}
}

func TestLinkKeyReverse(t *testing.T) {
	k := LinkKey{Source: 3, Target: 9}
	if got := k.Reverse(); got != (LinkKey{Source: 9, Target: 3}) {
		t.Fatalf("Reverse() = %+v", got)
	}
	if k.String() != "3 9" {
		t.Fatalf("String() = %q", k.String())
	}
}
