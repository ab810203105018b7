package router

import (
	"fmt"

	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

// Hop is one link observation derived from a message.
type Hop struct {
	Quality          int
	Source           int
	Target           int
	SourceIsProducer bool
}

// Validate checks that msg carries enough routing data to be applied.
func Validate(msg model.Message) error {
	switch {
	case msg.HopCount < 1:
		return fmt.Errorf("%w: hopcount %d", ErrMalformedMessage, msg.HopCount)
	case msg.HopCount > len(msg.Path):
		return fmt.Errorf("%w: hopcount %d exceeds path length %d", ErrMalformedMessage, msg.HopCount, len(msg.Path))
	case len(msg.PathQuality) < msg.HopCount-1:
		return fmt.Errorf("%w: %d qualities for hopcount %d", ErrMalformedMessage, len(msg.PathQuality), msg.HopCount)
	}
	for i, id := range msg.Path[:msg.HopCount] {
		if id < 0 {
			return fmt.Errorf("%w: negative mote id at path[%d]", ErrMalformedMessage, i)
		}
	}
	return nil
}

// ExpandHops lists the link observations for a validated message, in the
// order they are applied. For i in [0, hopcount-1) the hop leaves path[i]
// and enters path[i+1], except the last one which enters the root. Only
// the first hop starts at the producer.
func ExpandHops(msg model.Message, root int) []Hop {
	h := msg.HopCount
	if h < 2 {
		return nil
	}
	hops := make([]Hop, 0, h-1)
	for i := 0; i < h-1; i++ {
		target := root
		if i+1 < h-1 {
			target = msg.Path[i+1]
		}
		hops = append(hops, Hop{
			Quality:          msg.PathQuality[i],
			Source:           msg.Path[i],
			Target:           target,
			SourceIsProducer: i == 0,
		})
	}
	return hops
}
