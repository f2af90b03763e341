package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"halo/analyzer"
	"halo/audio"
	"halo/clipboard"
	"halo/transcriber"
)

const (
	DefaultListen    = 3 * time.Second
	handshakeTimeout = 10 * time.Second
	sampleInterval   = 20 * time.Millisecond
)

// StreamProvider opens the microphone.
type StreamProvider interface {
	Acquire(ctx context.Context) (*audio.Stream, error)
}

// Checks configures a diagnostics run.
type Checks struct {
	Out        io.Writer
	Source     StreamProvider
	Dialer     transcriber.Dialer
	Credential string
	Config     transcriber.Config
	Listen     time.Duration

	// Shortcut probes the global shortcut; nil skips the check.
	Shortcut func() (string, error)

	// Interactive resets the terminal and exits on Ctrl+C.
	Interactive bool
}

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(c Checks) int {
	if c.Listen <= 0 {
		c.Listen = DefaultListen
	}
	if c.Interactive {
		resetTerminal()
		setupInterruptHandler()
	}
	out := c.Out

	fmt.Fprintln(out, "halo doctor - system diagnostics")
	fmt.Fprintln(out, "================================")

	allPass := true
	credOK := checkCredential(out, c.Credential)
	if !credOK {
		allPass = false
	}
	if !checkMicrophone(out, c.Source, c.Listen) {
		allPass = false
	}
	if credOK && !checkHandshake(out, c.Dialer, c.Credential, c.Config) {
		allPass = false
	}
	checkClipboard(out)
	checkShortcut(out, c.Shortcut)

	fmt.Fprintln(out)
	if allPass {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(out, "Some checks failed. See details above.")
	return 1
}

func checkCredential(out io.Writer, credential string) bool {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[1/5] Transcription credential")
	if credential == "" {
		fmt.Fprintf(out, "  FAIL: %v\n", transcriber.ErrCredentialMissing)
		fmt.Fprintln(out, "  Set GEMINI_API_KEY or [transcription] credential in the config file")
		return false
	}
	fmt.Fprintln(out, "  PASS: credential configured")
	return true
}

func checkMicrophone(out io.Writer, src StreamProvider, listen time.Duration) bool {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[2/5] Microphone")

	stream, err := src.Acquire(context.Background())
	if err != nil {
		fmt.Fprintf(out, "  FAIL: %v\n", err)
		if errors.Is(err, audio.ErrPermissionDenied) {
			fmt.Fprintln(out, "  Grant microphone access to the terminal and retry")
		}
		return false
	}
	defer stream.Stop()

	an, err := analyzer.Attach(stream)
	if err != nil {
		fmt.Fprintf(out, "  FAIL: %v\n", err)
		return false
	}
	defer an.Detach()

	fmt.Fprintf(out, "  Speak for %s...\n", listen.Round(100*time.Millisecond))
	peak := listenPeak(an, listen)
	if peak == 0 {
		fmt.Fprintln(out, "  FAIL: no signal captured")
		return false
	}
	fmt.Fprintf(out, "  PASS: peak spectrum level %d/255\n", peak)
	return true
}

func listenPeak(an *analyzer.Analyzer, listen time.Duration) uint8 {
	var peak uint8
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	deadline := time.After(listen)
	for {
		select {
		case <-deadline:
			return peak
		case <-ticker.C:
			for _, v := range an.Snapshot() {
				peak = max(peak, v)
			}
		}
	}
}

func checkHandshake(out io.Writer, d transcriber.Dialer, credential string, cfg transcriber.Config) bool {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[3/5] Transcription handshake")

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()
	start := time.Now()
	conn, err := d.Dial(ctx, credential, cfg)
	if err != nil {
		fmt.Fprintf(out, "  FAIL: %v\n", err)
		return false
	}
	conn.Close()
	fmt.Fprintf(out, "  PASS: session ready in %dms\n", time.Since(start).Milliseconds())
	return true
}

func checkClipboard(out io.Writer) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[4/5] Clipboard")
	if !clipboard.Available() {
		fmt.Fprintln(out, "  WARN: no clipboard utility found (install xclip, xsel or wl-clipboard); copy disabled")
		return
	}
	fmt.Fprintln(out, "  PASS: clipboard available")
}

func checkShortcut(out io.Writer, probe func() (string, error)) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[5/5] Global shortcut")
	if probe == nil {
		fmt.Fprintln(out, "  SKIP: not requested")
		return
	}
	info, err := probe()
	if err != nil {
		fmt.Fprintf(out, "  WARN: %v; only in-app keys will toggle listening\n", err)
		return
	}
	fmt.Fprintf(out, "  PASS: %s\n", info)
}
