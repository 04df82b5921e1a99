// Package riva streams capture frames to an NVIDIA Riva ASR server over gRPC.
package riva

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/dictum/internal/asr"
	"github.com/rbright/dictum/internal/audio"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const sampleRate = audio.SampleRate

// SpeechPhrase is one vocabulary boost phrase in request-ready form.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}

// Config controls stream initialization and recognition behavior.
type Config struct {
	Endpoint             string
	LanguageCode         string
	Model                string
	AutomaticPunctuation bool
	SpeechPhrases        []SpeechPhrase
	DialTimeout          time.Duration
	QueueFrames          int
	// DebugResponses receives every response as one JSON line when set.
	DebugResponses io.Writer
}

func (c Config) normalized() Config {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.Model = strings.TrimSpace(c.Model)
	if c.DialTimeout <= 0 {
		c.DialTimeout = 3 * time.Second
	}
	if strings.TrimSpace(c.LanguageCode) == "" {
		c.LanguageCode = "en-US"
	}
	phrases := make([]SpeechPhrase, 0, len(c.SpeechPhrases))
	for _, p := range c.SpeechPhrases {
		if text := strings.TrimSpace(p.Phrase); text != "" {
			phrases = append(phrases, SpeechPhrase{Phrase: text, Boost: p.Boost})
		}
	}
	c.SpeechPhrases = phrases
	return c
}

// Engine opens one StreamingRecognize RPC per Begin.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{cfg: cfg.normalized(), logger: logger}
}

func (e *Engine) Name() string { return "riva" }

// Begin dials, waits for readiness, sends the streaming config, and starts
// the stream loops. All failures wrap asr.ErrEngineUnavailable.
func (e *Engine) Begin(ctx context.Context, l asr.Listener) (asr.Stream, error) {
	t, err := dial(ctx, e.cfg)
	if err != nil {
		return nil, asr.Unavailable(err)
	}
	e.logger.Info("riva stream opened", "endpoint", e.cfg.Endpoint, "model", e.cfg.Model)
	return asr.NewStream(t, l, asr.StreamOptions{QueueFrames: e.cfg.QueueFrames, Logger: e.logger}), nil
}

// transport is one bidi StreamingRecognize call. The stream context outlives
// the Begin caller's context and is canceled by Close.
type transport struct {
	schema *schema
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc
	debug  io.Writer

	debugMu sync.Mutex
	once    sync.Once
}

func dial(ctx context.Context, cfg Config) (*transport, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("riva endpoint is empty")
	}
	sch, err := loadSchema()
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(
		cfg.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial riva grpc %q: %w", cfg.Endpoint, err)
	}

	readyCtx, cancelReady := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancelReady()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for riva grpc readiness: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	desc := &grpc.StreamDesc{StreamName: "StreamingRecognize", ClientStreams: true, ServerStreams: true}
	stream, err := conn.NewStream(streamCtx, desc, streamingRecognizeMethod)
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("open streaming recognizer: %w", err)
	}

	t := &transport{schema: sch, conn: conn, stream: stream, cancel: cancel, debug: cfg.DebugResponses}
	err = runWithTimeout(ctx, cfg.DialTimeout, func() error {
		return stream.SendMsg(sch.configRequest(cfg))
	})
	if err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("send initial streaming config: %w", err)
	}
	return t, nil
}

func (t *transport) Send(frame audio.Frame) error {
	if len(frame.Samples) == 0 {
		return nil
	}
	return t.stream.SendMsg(t.schema.audioRequest(frame.PCM()))
}

func (t *transport) Recv() ([]asr.Update, error) {
	for {
		resp := t.schema.newResponse()
		if err := t.stream.RecvMsg(resp); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("riva closed the recognition stream")
			}
			return nil, err
		}
		t.writeDebug(resp)

		results := t.schema.results(resp)
		if len(results) == 0 {
			continue
		}
		updates := make([]asr.Update, 0, len(results))
		for _, r := range results {
			updates = append(updates, asr.Update{Text: r.Transcript, IsFinal: r.IsFinal})
		}
		return updates, nil
	}
}

func (t *transport) Close() error {
	var err error
	t.once.Do(func() {
		t.cancel()
		err = t.conn.Close()
	})
	return err
}

func (t *transport) writeDebug(resp proto.Message) {
	if t.debug == nil {
		return
	}
	line, err := protojson.Marshal(resp)
	if err != nil {
		return
	}
	t.debugMu.Lock()
	defer t.debugMu.Unlock()
	_, _ = t.debug.Write(append(line, '\n'))
}
