package doctor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"halo/audio"
	"halo/encoder"
	"halo/transcriber"
)

// writeToneWAV writes a header-sized zero prefix followed by a 1kHz tone.
func writeToneWAV(t *testing.T) string {
	t.Helper()
	n := encoder.SampleRate
	buf := make([]byte, audio.WAVHeaderSize+n*2)
	for i := 0; i < n; i++ {
		s := int16(math.Sin(2*math.Pi*1000*float64(i)/encoder.SampleRate) * 16000)
		binary.LittleEndian.PutUint16(buf[audio.WAVHeaderSize+i*2:], uint16(s))
	}
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func toneSource(t *testing.T) *audio.Source {
	t.Helper()
	ctx, err := audio.NewFakeContext(writeToneWAV(t), true)
	if err != nil {
		t.Fatal(err)
	}
	return audio.NewSource(ctx, nil)
}

func TestRunAllPass(t *testing.T) {
	var out bytes.Buffer
	code := Run(Checks{
		Out:        &out,
		Source:     toneSource(t),
		Dialer:     transcriber.NewFakeDialer(),
		Credential: "key",
		Listen:     200 * time.Millisecond,
	})
	if !strings.Contains(out.String(), "PASS: credential configured") {
		t.Errorf("output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "PASS: peak spectrum level") {
		t.Errorf("microphone check did not pass:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "PASS: session ready") {
		t.Errorf("handshake check did not pass:\n%s", out.String())
	}
	if code != 0 {
		t.Errorf("exit code %d, want 0", code)
	}
}

func TestRunWithoutCredentialSkipsHandshake(t *testing.T) {
	var out bytes.Buffer
	d := transcriber.NewFakeDialer()
	code := Run(Checks{
		Out:    &out,
		Source: toneSource(t),
		Dialer: d,
		Listen: 50 * time.Millisecond,
	})
	if code != 1 {
		t.Errorf("exit code %d, want 1", code)
	}
	if d.Dials() != 0 {
		t.Error("dialed without a credential")
	}
	if strings.Contains(out.String(), "[3/5]") {
		t.Error("handshake check ran without a credential")
	}
}

func TestRunReportsCaptureAndDialFailures(t *testing.T) {
	ctx := audio.NewManualContext()
	ctx.StartErr = errors.New("access denied by user")
	d := transcriber.NewFakeDialer()
	d.Err = errors.New("403 Forbidden")

	var out bytes.Buffer
	code := Run(Checks{
		Out:        &out,
		Source:     audio.NewSource(ctx, nil),
		Dialer:     d,
		Credential: "key",
		Listen:     10 * time.Millisecond,
	})
	if code != 1 {
		t.Errorf("exit code %d, want 1", code)
	}
	for _, want := range []string{"Grant microphone access", "FAIL: 403 Forbidden"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestShortcutCheckWarnsWithoutFailing(t *testing.T) {
	tests := []struct {
		name  string
		probe func() (string, error)
		want  string
	}{
		{"skipped", nil, "SKIP: not requested"},
		{"available", func() (string, error) { return "2 keyboard(s) found", nil }, "PASS: 2 keyboard(s) found"},
		{"unavailable", func() (string, error) { return "", errors.New("no keyboard devices found") }, "WARN: no keyboard devices found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			checkShortcut(&out, tt.probe)
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output %q, want %q", out.String(), tt.want)
			}
		})
	}
}
