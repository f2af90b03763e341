package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"halo/audio"
	"halo/shutdown"
	"halo/transcriber"
)

// replaySettle is how long a replayed file keeps the session open after
// its last sample so trailing transcription can arrive.
const replaySettle = 1500 * time.Millisecond

func listenCmd() *cobra.Command {
	var limit time.Duration
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stream transcription to stdout without the visualizer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()
			return runListen(ctx, cmd.OutOrStdout(), limit)
		},
	}
	cmd.Flags().DurationVar(&limit, "for", 0, "stop after this long (0 = until interrupted)")
	return cmd
}

func runListen(ctx context.Context, out io.Writer, limit time.Duration) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	states := a.manager.Subscribe()
	ctrl := a.newController(ctx, nil, nil)
	defer ctrl.Close()

	if err := ctrl.Activate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "listening on %s, Ctrl+C to stop\n", a.source.DeviceName())

	var deadline <-chan time.Time
	if limit > 0 {
		deadline = time.After(limit)
	}
	var audioDone <-chan struct{}
	if fc, ok := a.audioCtx.(*audio.FakeContext); ok {
		if c := fc.Last(); c != nil {
			audioDone = c.AudioDone()
		}
	}

	p := &transcriptPrinter{out: out}
	defer p.finish()
	for {
		select {
		case full := <-a.manager.Updates():
			p.print(full)
		case st := <-states:
			switch st {
			case transcriber.StateError:
				return a.manager.Err()
			case transcriber.StateIdle:
				fmt.Fprintln(os.Stderr, "server closed the session")
				return nil
			}
		case <-audioDone:
			audioDone = nil
			deadline = time.After(replaySettle)
		case <-deadline:
			ctrl.Deactivate()
			p.drain(a.manager.Updates())
			return nil
		case <-ctx.Done():
			ctrl.Deactivate()
			p.drain(a.manager.Updates())
			return nil
		}
	}
}

// transcriptPrinter writes only the part of the transcript not yet shown.
type transcriptPrinter struct {
	out     io.Writer
	printed int
}

func (p *transcriptPrinter) print(full string) {
	if len(full) < p.printed {
		p.printed = 0
	}
	fmt.Fprint(p.out, full[p.printed:])
	p.printed = len(full)
}

func (p *transcriptPrinter) drain(updates <-chan string) {
	for {
		select {
		case full := <-updates:
			p.print(full)
		default:
			return
		}
	}
}

func (p *transcriptPrinter) finish() {
	if p.printed > 0 {
		fmt.Fprintln(p.out)
	}
}
