package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ScriptLoader fetches and caches a gateway's checkout script asset. A
// successful fetch is cached for the process lifetime; concurrent callers
// share one in-flight fetch; a failed fetch clears the memo so the next
// caller retries.
type ScriptLoader struct {
	url    string
	client *http.Client

	mu       sync.Mutex
	script   []byte
	inflight chan struct{}
	lastErr  error
}

// NewScriptLoader creates a loader for the given script URL.
func NewScriptLoader(url string, client *http.Client) *ScriptLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &ScriptLoader{url: url, client: client}
}

// Load returns the script bytes, fetching them on first use.
func (l *ScriptLoader) Load(ctx context.Context) ([]byte, error) {
	l.mu.Lock()
	if l.script != nil {
		script := l.script
		l.mu.Unlock()
		return script, nil
	}

	if l.inflight != nil {
		// Another goroutine is fetching; wait for it.
		done := l.inflight
		l.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.script != nil {
			return l.script, nil
		}
		return nil, l.lastErr
	}

	done := make(chan struct{})
	l.inflight = done
	l.mu.Unlock()

	script, err := l.fetch(ctx)

	l.mu.Lock()
	l.inflight = nil
	l.lastErr = err
	if err == nil {
		l.script = script
	}
	close(done)
	l.mu.Unlock()

	return script, err
}

// Loaded reports whether the script is cached.
func (l *ScriptLoader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.script != nil
}

func (l *ScriptLoader) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("script fetch returned %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}
