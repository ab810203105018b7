package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ReplayPort emits a captured bridge log one line per interval, standing in
// for the serial device during demos and tests.
type ReplayPort struct {
	reader *io.PipeReader
	writer *io.PipeWriter

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// OpenReplay loads a capture file and returns a port replaying it.
func OpenReplay(path string, interval time.Duration, loop bool) (*ReplayPort, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay capture %s: %w", path, err)
	}
	return NewReplayPort(data, interval, loop), nil
}

// NewReplayPort replays the non-blank lines of capture. With loop set the
// capture restarts after its last line; otherwise the port reaches EOF.
func NewReplayPort(capture []byte, interval time.Duration, loop bool) *ReplayPort {
	pr, pw := io.Pipe()
	p := &ReplayPort{
		reader: pr,
		writer: pw,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run(splitLines(capture), interval, loop)
	return p
}

func splitLines(capture []byte) [][]byte {
	var lines [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(capture))
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append(append([]byte(nil), line...), '\n'))
	}
	return lines
}

func (p *ReplayPort) run(lines [][]byte, interval time.Duration, loop bool) {
	defer close(p.done)
	if len(lines) == 0 {
		p.writer.Close()
		return
	}

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := 0; ; i++ {
		if i == len(lines) {
			if !loop {
				p.writer.Close()
				return
			}
			i = 0
		}
		if tick != nil {
			select {
			case <-p.stop:
				return
			case <-tick:
			}
		}
		if _, err := p.writer.Write(lines[i]); err != nil {
			return
		}
	}
}

// Read implements io.Reader.
func (p *ReplayPort) Read(b []byte) (int, error) {
	return p.reader.Read(b)
}

// Close stops the replay and unblocks pending reads.
func (p *ReplayPort) Close() error {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.writer.CloseWithError(io.ErrClosedPipe)
		p.reader.Close()
	})
	<-p.done
	return nil
}
