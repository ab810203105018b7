// Command simulator writes synthetic bridge traffic: one JSON message line
// per tick from a random collection tree. Its output can be replayed by the
// monitor through the fixturesFile setting.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/ingest"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/timectrl"
)

func main() {
	root := flag.Int("root", 1, "id of the root mote")
	motes := flag.Int("motes", 6, "number of producer motes")
	tick := flag.Duration("tick", 500*time.Millisecond, "interval between messages")
	count := flag.Int("count", 0, "messages to emit; 0 runs until interrupted")
	churn := flag.Float64("churn", 0.1, "probability that a producer changes parent before sending")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	out := flag.String("out", "-", "output file, - for stdout")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w := io.Writer(os.Stdout)
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			log.Error(ctx, "failed to create output", logging.String("path", *out), logging.Err(err))
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	gen := newGenerator(rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)), *root, *motes, *churn)
	log.Info(ctx, "simulating mote traffic",
		logging.Int("root", *root),
		logging.Any("motes", gen.producers()),
		logging.Any("tick", *tick),
	)

	if err := run(ctx, gen, timectrl.NewController(*tick), w, *count); err != nil {
		log.Error(ctx, "simulator failed", logging.Err(err))
		os.Exit(1)
	}
}

// run emits count messages (unbounded when count is 0), one per tick.
func run(ctx context.Context, gen *generator, ctrl *timectrl.Controller, w io.Writer, count int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bw := bufio.NewWriter(w)
	var (
		emitted  int
		writeErr error
	)
	ctrl.AddListener(func(_ context.Context, _ time.Time) {
		if writeErr != nil || (count > 0 && emitted >= count) {
			return
		}
		line, err := ingest.Encode(gen.next())
		if err == nil {
			_, err = fmt.Fprintf(bw, "%s\n", line)
		}
		if err == nil {
			err = bw.Flush()
		}
		if err != nil {
			writeErr = err
			cancel()
			return
		}
		emitted++
		if count > 0 && emitted >= count {
			cancel()
		}
	})

	<-ctrl.Start(ctx)
	return writeErr
}
