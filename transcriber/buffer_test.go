package transcriber

import "testing"

func TestBufferAppendsInOrder(t *testing.T) {
	var b Buffer
	if b.String() != "" || b.Len() != 0 {
		t.Fatal("new buffer not empty")
	}
	b.Append("Hel")
	if got := b.Append("lo world"); got != "Hello world" {
		t.Errorf("Append returned %q", got)
	}
	b.Append("")
	if got := b.String(); got != "Hello world" {
		t.Errorf("String() = %q, want %q", got, "Hello world")
	}
	if b.Len() != len("Hello world") {
		t.Errorf("Len() = %d", b.Len())
	}
	b.Reset()
	if b.String() != "" {
		t.Error("Reset did not clear")
	}
}

func TestServerMessageTranscriptText(t *testing.T) {
	tests := []struct {
		name string
		msg  ServerMessage
		want string
		ok   bool
	}{
		{"empty", ServerMessage{}, "", false},
		{"setup", ServerMessage{SetupComplete: &struct{}{}}, "", false},
		{"turn only", ServerMessage{ServerContent: &ServerContent{TurnComplete: true}}, "", false},
		{"blank text", transcriptMessage(""), "", false},
		{"fragment", transcriptMessage("lo wor"), "lo wor", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.msg.TranscriptText()
			if got != tt.want || ok != tt.ok {
				t.Errorf("TranscriptText() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}
