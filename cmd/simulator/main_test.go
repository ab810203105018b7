package main

import (
	"bytes"
	"context"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/ingest"
	"github.com/davideleoni90/TinysOSClassMonitoring/timectrl"
)

func TestGeneratorRoutesEndAtRoot(t *testing.T) {
	gen := newGenerator(rand.New(rand.NewPCG(3, 4)), 1, 8, 0.5)

	for i := 0; i < 200; i++ {
		msg := gen.next()
		if msg.HopCount != len(msg.Path) || msg.HopCount == 0 {
			t.Fatalf("hopcount %d for path %v", msg.HopCount, msg.Path)
		}
		if msg.Path[0] != msg.Origin {
			t.Fatalf("path %v does not start at origin %d", msg.Path, msg.Origin)
		}
		seen := make(map[int]bool)
		for _, id := range msg.Path {
			if id == 1 {
				t.Fatalf("path %v contains the root", msg.Path)
			}
			if seen[id] {
				t.Fatalf("path %v has a cycle", msg.Path)
			}
			seen[id] = true
		}
		if len(msg.PathQuality) < msg.HopCount-1 {
			t.Fatalf("qualities %v too short for hopcount %d", msg.PathQuality, msg.HopCount)
		}
	}
}

func TestRunEmitsDecodableLines(t *testing.T) {
	gen := newGenerator(rand.New(rand.NewPCG(5, 6)), 1, 4, 0.2)
	var buf bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := run(ctx, gen, timectrl.NewController(time.Millisecond), &buf, 5); err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}
	for _, line := range lines {
		msg, err := ingest.Decode([]byte(line))
		if err != nil {
			t.Fatalf("Decode(%q): %v", line, err)
		}
		if msg.Origin < 2 || msg.Origin > 5 {
			t.Fatalf("unexpected origin %d", msg.Origin)
		}
	}
}
