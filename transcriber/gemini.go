package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"halo/encoder"
)

const (
	geminiHandshakeTimeout = 10 * time.Second
	geminiWriteTimeout     = 5 * time.Second
)

type geminiSetup struct {
	Setup struct {
		Model            string `json:"model"`
		GenerationConfig struct {
			ResponseModalities []string `json:"responseModalities"`
		} `json:"generationConfig"`
		SystemInstruction struct {
			Parts []geminiPart `json:"parts"`
		} `json:"systemInstruction"`
		InputAudioTranscription struct{} `json:"inputAudioTranscription"`
	} `json:"setup"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiRealtimeInput struct {
	RealtimeInput struct {
		MediaChunks []encoder.Frame `json:"mediaChunks"`
	} `json:"realtimeInput"`
}

func newGeminiSetup(cfg Config) geminiSetup {
	var s geminiSetup
	s.Setup.Model = cfg.Model
	s.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	s.Setup.SystemInstruction.Parts = []geminiPart{{Text: cfg.SystemInstruction}}
	return s
}

// GeminiDialer connects to the Gemini Live bidirectional streaming API.
type GeminiDialer struct {
	ws               *websocket.Dialer
	handshakeTimeout time.Duration
}

func NewGeminiDialer() *GeminiDialer {
	return &GeminiDialer{
		ws:               &websocket.Dialer{HandshakeTimeout: geminiHandshakeTimeout},
		handshakeTimeout: geminiHandshakeTimeout,
	}
}

func buildGeminiURL(endpoint, credential string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens the socket, sends the setup message and waits for
// setupComplete.
func (d *GeminiDialer) Dial(ctx context.Context, credential string, cfg Config) (Conn, error) {
	cfg = cfg.withDefaults()
	wsURL, err := buildGeminiURL(cfg.Endpoint, credential)
	if err != nil {
		return nil, err
	}

	ws, resp, err := d.ws.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	// Cancelling ctx during setup closes the socket, which unblocks the
	// reads below.
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	deadline := time.Now().Add(d.handshakeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	ws.SetWriteDeadline(deadline)
	if err := ws.WriteJSON(newGeminiSetup(cfg)); err != nil {
		ws.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("send setup: %w", err)
	}

	ws.SetReadDeadline(deadline)
	for {
		msg, err := readGemini(ws)
		if err != nil {
			ws.Close()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("await setup: %w", err)
		}
		if msg.SetupComplete != nil {
			break
		}
	}
	if !stop() {
		// ctx fired after setupComplete arrived; the socket is already closed
		return nil, ctx.Err()
	}
	ws.SetReadDeadline(time.Time{})
	ws.SetWriteDeadline(time.Time{})

	return &geminiConn{ws: ws}, nil
}

func readGemini(ws *websocket.Conn) (ServerMessage, error) {
	_, data, err := ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return ServerMessage{}, io.EOF
		}
		return ServerMessage{}, err
	}
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{}, fmt.Errorf("decode server message: %w", err)
	}
	return msg, nil
}

type geminiConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
	closed  atomic.Bool
}

func (c *geminiConn) Send(f encoder.Frame) error {
	var in geminiRealtimeInput
	in.RealtimeInput.MediaChunks = []encoder.Frame{f}

	if c.closed.Load() {
		return errConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(geminiWriteTimeout))
	return c.ws.WriteJSON(in)
}

func (c *geminiConn) Recv() (ServerMessage, error) {
	return readGemini(c.ws)
}

var errConnClosed = errors.New("connection closed")

func (c *geminiConn) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		// WriteControl may run concurrently with a blocked Send; closing
		// the socket afterwards aborts that Send.
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
