package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"sync"

	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/logger"
)

// TokenHeader carries the webhook token.
const TokenHeader = "X-Token"

// ErrAlreadyRunning is returned when a run is triggered while one is in flight.
var ErrAlreadyRunning = errors.New("pipeline already running")

// TriggerFunc runs the pipeline.
type TriggerFunc func(ctx context.Context) error

// Webhook starts one pipeline run at a time.
type Webhook struct {
	// Token is compared with the X-Token header when non-empty.
	Token   string
	Trigger TriggerFunc
	Journal *journal.Journal

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// Running reports whether a run is in flight.
func (w *Webhook) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Start launches a run in the background under ctx.
func (w *Webhook) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyRunning
	}
	w.running = true
	w.note("pipeline started")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		err := w.Trigger(ctx)

		result := "success"
		if err != nil {
			result = "error"
			logger.Error("webhook run failed", "error", err)
		}
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.note("pipeline " + result)
	}()
	return nil
}

// Wait blocks until the in-flight run, if any, returns.
func (w *Webhook) Wait() {
	w.wg.Wait()
}

// Handler routes POST /trigger. Runs are bound to ctx, not to the request.
func (w *Webhook) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /trigger", func(rw http.ResponseWriter, r *http.Request) {
		if w.Token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(TokenHeader)), []byte(w.Token)) != 1 {
			rw.WriteHeader(http.StatusForbidden)
			return
		}
		if err := w.Start(ctx); err != nil {
			rw.WriteHeader(http.StatusConflict)
			return
		}
		rw.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (w *Webhook) note(action string) {
	if w.Journal != nil {
		w.Journal.Log("Webhook", action)
	}
}
