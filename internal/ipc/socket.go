package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

var ErrAlreadyRunning = errors.New("dictum session already running")

// RuntimeSocketPath returns $XDG_RUNTIME_DIR/dictum.sock.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "dictum.sock"), nil
}

type AcquireOptions struct {
	// ProbeTimeout bounds the liveness check against an existing socket.
	ProbeTimeout time.Duration
	// Retries is how many more listen attempts follow a stale-socket removal.
	Retries int
	// OnStale is called with the path after a dead socket is removed.
	OnStale func(path string)
}

// Owner is the listening side of the control socket. Closing it unlinks the
// socket path so the next record can acquire it.
type Owner struct {
	net.Listener
	path string
	once sync.Once
	err  error
}

func (o *Owner) Path() string { return o.path }

func (o *Owner) Close() error {
	o.once.Do(func() {
		o.err = o.Listener.Close()
		if err := os.Remove(o.path); err != nil && !errors.Is(err, os.ErrNotExist) && o.err == nil {
			o.err = err
		}
	})
	return o.err
}

// Acquire listens on path, replacing a socket whose owner no longer answers.
// A live owner yields ErrAlreadyRunning; an owner that accepts but never
// replies is left alone.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (*Owner, error) {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 200 * time.Millisecond
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return &Owner{Listener: listener, path: path}, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, probeErr := Probe(ctx, path, opts.ProbeTimeout)
		if alive {
			return nil, ErrAlreadyRunning
		}
		if probeErr != nil {
			return nil, fmt.Errorf("probe existing socket %s: %w", path, probeErr)
		}

		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, removeErr)
		}
		if opts.OnStale != nil {
			opts.OnStale(path)
		}

		if attempt < opts.Retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, opts.Retries)
}
