package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fjod/stonehub/internal/storage"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	ClientIDHeader  = "X-Client-ID"
	SessionIDHeader = "X-Session-ID"

	maxIDLength = 128
)

type ctxKey int

const storeKey ctxKey = iota

func storeFromContext(ctx context.Context) *storage.Store {
	st, _ := ctx.Value(storeKey).(*storage.Store)
	return st
}

func validID(id string) bool {
	return id != "" && len(id) <= maxIDLength && !strings.ContainsAny(id, ": \t\r\n")
}

// ClientMiddleware binds the request to the caller's storage namespace. The
// client id plays the part of one browser's local storage, the session id
// that of one tab.
func ClientMiddleware(adapter *storage.Adapter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := r.Header.Get(ClientIDHeader)
			if !validID(clientID) {
				respondError(w, http.StatusBadRequest, "missing_client_id", ClientIDHeader+" header is required")
				return
			}
			sessionID := r.Header.Get(SessionIDHeader)
			if sessionID != "" && !validID(sessionID) {
				respondError(w, http.StatusBadRequest, "invalid_session_id", SessionIDHeader+" header is malformed")
				return
			}

			ctx := context.WithValue(r.Context(), storeKey, adapter.For(clientID, sessionID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientLocks hands out one RWMutex per client id. Entries are dropped once
// nobody holds or waits for them.
type clientLocks struct {
	mu    sync.Mutex
	locks map[string]*clientLock
}

type clientLock struct {
	rw   sync.RWMutex
	refs int
}

func newClientLocks() *clientLocks {
	return &clientLocks{locks: make(map[string]*clientLock)}
}

func (c *clientLocks) acquire(clientID string) *clientLock {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[clientID]
	if !ok {
		l = &clientLock{}
		c.locks[clientID] = l
	}
	l.refs++
	return l
}

func (c *clientLocks) release(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.locks[clientID]
	l.refs--
	if l.refs == 0 {
		delete(c.locks, clientID)
	}
}

// Middleware runs requests of one client one at a time, letting reads
// overlap with each other. Requests of different clients never wait on
// each other.
func (c *clientLocks) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := storeFromContext(r.Context())
		if st == nil {
			next.ServeHTTP(w, r)
			return
		}

		clientID := st.ClientID()
		l := c.acquire(clientID)
		defer c.release(clientID)

		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			l.rw.RLock()
			defer l.rw.RUnlock()
		} else {
			l.rw.Lock()
			defer l.rw.Unlock()
		}
		next.ServeHTTP(w, r)
	})
}

func MaxBodyMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("request completed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("client_id", r.Header.Get(ClientIDHeader)),
				zap.Duration("latency", time.Since(start)),
			)
		})
	}
}
