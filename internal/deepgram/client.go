// Package deepgram streams capture frames to the Deepgram live transcription
// websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rbright/dictum/internal/asr"
	"github.com/rbright/dictum/internal/audio"
)

const DefaultEndpoint = "wss://api.deepgram.com/v1/listen"

type Config struct {
	Endpoint     string
	APIKey       string
	Model        string
	LanguageCode string
	Punctuate    bool
	DialTimeout  time.Duration
	QueueFrames  int
}

// Engine opens one websocket per Begin.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &Engine{cfg: cfg, logger: logger}
}

func (e *Engine) Name() string { return "deepgram" }

func (e *Engine) Begin(ctx context.Context, l asr.Listener) (asr.Stream, error) {
	t, err := e.dial(ctx)
	if err != nil {
		return nil, asr.Unavailable(err)
	}
	e.logger.Info("deepgram stream opened", "model", e.cfg.Model)
	return asr.NewStream(t, l, asr.StreamOptions{QueueFrames: e.cfg.QueueFrames, Logger: e.logger}), nil
}

// listenURL encodes the raw PCM format and recognition options as query
// parameters.
func (e *Engine) listenURL() (string, error) {
	u, err := url.Parse(strings.TrimSpace(e.cfg.Endpoint))
	if err != nil {
		return "", fmt.Errorf("parse deepgram endpoint: %w", err)
	}
	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(audio.SampleRate))
	q.Set("channels", strconv.Itoa(audio.Channels))
	q.Set("interim_results", "true")
	q.Set("punctuate", strconv.FormatBool(e.cfg.Punctuate))
	if model := strings.TrimSpace(e.cfg.Model); model != "" {
		q.Set("model", model)
	}
	if lang := strings.TrimSpace(e.cfg.LanguageCode); lang != "" {
		q.Set("language", lang)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (e *Engine) dial(ctx context.Context) (*transport, error) {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return nil, errors.New("deepgram api key is empty")
	}
	target, err := e.listenURL()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: e.cfg.DialTimeout}
	header := http.Header{"Authorization": {"Token " + e.cfg.APIKey}}
	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect deepgram: %w (http %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("connect deepgram: %w", err)
	}
	return &transport{conn: conn}, nil
}

// message is the subset of a Deepgram streaming response this client reads.
type message struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// closeStreamMessage asks Deepgram to flush and end the session.
var closeStreamMessage = []byte(`{"type":"CloseStream"}`)

type transport struct {
	conn *websocket.Conn
	once sync.Once
	// writeMu keeps gorilla's single-writer rule between Send and Close.
	writeMu sync.Mutex
}

func (t *transport) Send(frame audio.Frame) error {
	if len(frame.Samples) == 0 {
		return nil
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, frame.PCM())
}

func (t *transport) Recv() ([]asr.Update, error) {
	for {
		kind, payload, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil, errors.New("deepgram closed the stream")
			}
			return nil, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		u, ok, err := parseMessage(payload)
		if err != nil {
			return nil, err
		}
		if ok {
			return []asr.Update{u}, nil
		}
	}
}

func parseMessage(payload []byte) (asr.Update, bool, error) {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return asr.Update{}, false, fmt.Errorf("decode deepgram message: %w", err)
	}
	if msg.Type != "" && msg.Type != "Results" {
		return asr.Update{}, false, nil
	}
	if len(msg.Channel.Alternatives) == 0 {
		return asr.Update{}, false, nil
	}
	text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
	if text == "" {
		return asr.Update{}, false, nil
	}
	return asr.Update{Text: text, IsFinal: msg.IsFinal || msg.SpeechFinal}, true, nil
}

// Close may run concurrently with Send and Recv. CloseStream is skipped when a
// frame write is in flight; WriteControl and Close are safe regardless.
func (t *transport) Close() error {
	var err error
	t.once.Do(func() {
		if t.writeMu.TryLock() {
			_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = t.conn.WriteMessage(websocket.TextMessage, closeStreamMessage)
			t.writeMu.Unlock()
		}
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = t.conn.Close()
	})
	return err
}
