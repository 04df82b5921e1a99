// Package recording persists captured PCM to FLAC or WAV files.
package recording

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
)

// ErrWriteFailure is wrapped by every disk or encoder error.
var ErrWriteFailure = errors.New("recording write failed")

type Format string

const (
	FormatFLAC Format = "flac"
	FormatWAV  Format = "wav"
)

// ParseFormat accepts a format name or file extension.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), ".")) {
	case "flac":
		return FormatFLAC, nil
	case "wav", "wave":
		return FormatWAV, nil
	default:
		return "", fmt.Errorf("unsupported recording format %q", raw)
	}
}

// FormatForPath picks the format from the path extension, falling back to def.
func FormatForPath(path string, def Format) Format {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f
	}
	return def
}

type encoder interface {
	write(samples []int16) error
	close() error
}

// File is an open recording. It is not safe for concurrent use.
type File struct {
	path    string
	format  Format
	f       *os.File
	enc     encoder
	samples uint64
	closed  bool
}

// Create truncates or creates path and prepares an encoder for format.
func Create(path string, format Format) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: destination path is empty", ErrWriteFailure)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create recording dir: %v", ErrWriteFailure, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrWriteFailure, path, err)
	}

	var enc encoder
	switch format {
	case FormatFLAC:
		enc, err = newFLACEncoder(seekOnly{f})
	case FormatWAV:
		enc = newWAVEncoder(seekOnly{f})
	default:
		err = fmt.Errorf("unsupported recording format %q", format)
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}

	return &File{path: path, format: format, f: f, enc: enc}, nil
}

func (r *File) Path() string   { return r.path }
func (r *File) Format() Format { return r.format }

// Duration reports the audio written so far.
func (r *File) Duration() time.Duration {
	return time.Duration(r.samples) * time.Second / SampleRate
}

// Write appends mono 16-bit samples.
func (r *File) Write(samples []int16) error {
	if r.closed {
		return fmt.Errorf("%w: %s is finalized", ErrWriteFailure, r.path)
	}
	if len(samples) == 0 {
		return nil
	}
	if err := r.enc.write(samples); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	r.samples += uint64(len(samples))
	return nil
}

// Finalize flushes the encoder, rewrites headers and closes the file.
// Later calls return nil.
func (r *File) Finalize() error {
	if r.closed {
		return nil
	}
	r.closed = true

	encErr := r.enc.close()
	closeErr := r.f.Close()
	if err := errors.Join(encErr, closeErr); err != nil {
		return fmt.Errorf("%w: finalize %s: %v", ErrWriteFailure, r.path, err)
	}
	return nil
}

// Remove finalizes best-effort and deletes the file.
func (r *File) Remove() error {
	_ = r.Finalize()
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove recording %s: %w", r.path, err)
	}
	return nil
}

// seekOnly hides Close so encoders cannot close the file underneath us.
type seekOnly struct {
	f *os.File
}

func (s seekOnly) Write(p []byte) (int, error)              { return s.f.Write(p) }
func (s seekOnly) Seek(off int64, whence int) (int64, error) { return s.f.Seek(off, whence) }

var _ io.WriteSeeker = seekOnly{}
