package model

import "fmt"

// LinkKey identifies a directed link between two motes. (a,b) and (b,a)
// are distinct keys.
type LinkKey struct {
	Source int
	Target int
}

// Reverse returns the key of the link pointing the other way.
func (k LinkKey) Reverse() LinkKey {
	return LinkKey{Source: k.Target, Target: k.Source}
}

// String renders the key as "source target", the form used in logs and
// as the link index in the HTTP API.
func (k LinkKey) String() string {
	return fmt.Sprintf("%d %d", k.Source, k.Target)
}

// Link is a directed radio link between two motes. Endpoints are held by
// mote ID; the motes themselves are owned by the mote registry.
type Link struct {
	Source  int    `json:"source"`
	Target  int    `json:"target"`
	Quality int    `json:"quality"`
	Label   string `json:"label"`
}

// Key returns the directed key of the link.
func (l *Link) Key() LinkKey {
	return LinkKey{Source: l.Source, Target: l.Target}
}
