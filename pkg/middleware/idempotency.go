package middleware

import (
	"bytes"
	"net/http"
	"sync"
	"time"
)

const IdempotencyHeader = "Idempotency-Key"

// IdempotencyStore caches successful responses so a retried booking
// confirmation replays the first result instead of appending twice.
// Acquire serializes requests that share a key; the second one sees the
// first one's cached response once it is released.
type IdempotencyStore interface {
	Acquire(key string) (release func())
	Get(key string) (*CachedResponse, bool)
	Set(key string, response *CachedResponse)
	Stop()
}

type CachedResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	CreatedAt  time.Time
}

type idempotencyEntry struct {
	mu       sync.Mutex
	waiters  int
	response *CachedResponse
}

type InMemoryIdempotencyStore struct {
	mu       sync.Mutex
	entries  map[string]*idempotencyEntry
	ttl      time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewInMemoryIdempotencyStore(ttl time.Duration) *InMemoryIdempotencyStore {
	store := newInMemoryIdempotencyStore(ttl, time.Now)
	go store.cleanup()
	return store
}

func newInMemoryIdempotencyStore(ttl time.Duration, now func() time.Time) *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{
		entries: make(map[string]*idempotencyEntry),
		ttl:     ttl,
		now:     now,
		stopCh:  make(chan struct{}),
	}
}

func (s *InMemoryIdempotencyStore) Acquire(key string) func() {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &idempotencyEntry{}
		s.entries[key] = e
	}
	e.waiters++
	s.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		s.mu.Lock()
		e.waiters--
		if e.waiters == 0 && e.response == nil {
			delete(s.entries, key)
		}
		s.mu.Unlock()
	}
}

func (s *InMemoryIdempotencyStore) Get(key string) (*CachedResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.response == nil {
		return nil, false
	}
	if s.expired(e.response) {
		e.response = nil
		return nil, false
	}
	return e.response, true
}

func (s *InMemoryIdempotencyStore) Set(key string, response *CachedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	response.CreatedAt = s.now()
	e, ok := s.entries[key]
	if !ok {
		e = &idempotencyEntry{}
		s.entries[key] = e
	}
	e.response = response
}

func (s *InMemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *InMemoryIdempotencyStore) expired(r *CachedResponse) bool {
	return s.now().Sub(r.CreatedAt) > s.ttl
}

// sweep drops expired responses. Entries a request currently holds are
// left for their release to remove.
func (s *InMemoryIdempotencyStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if e.response != nil && s.expired(e.response) {
			e.response = nil
		}
		if e.response == nil && e.waiters == 0 {
			delete(s.entries, key)
		}
	}
}

func (s *InMemoryIdempotencyStore) cleanup() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *InMemoryIdempotencyStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

func Idempotency(store IdempotencyStore, headerName string) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = IdempotencyHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idempotencyKey := extractIdempotencyKey(r, headerName)

			if idempotencyKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			release := store.Acquire(idempotencyKey)
			defer release()

			if handleCachedResponse(w, store, idempotencyKey) {
				return
			}

			capture := captureResponse(w)
			next.ServeHTTP(capture, r)
			cacheSuccessfulResponse(store, idempotencyKey, capture, w)
		})
	}
}

// extractIdempotencyKey scopes the client key to the route and, for the
// registration flow, to the session so two sessions cannot share a replay.
func extractIdempotencyKey(r *http.Request, headerName string) string {
	key := r.Header.Get(headerName)
	if key == "" || len(key) > 128 {
		return ""
	}
	return r.Method + " " + r.URL.Path + " " + key
}

func handleCachedResponse(w http.ResponseWriter, store IdempotencyStore, key string) bool {
	cached, found := store.Get(key)
	if !found {
		return false
	}

	replayCachedResponse(w, cached)
	return true
}

func replayCachedResponse(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}

func captureResponse(w http.ResponseWriter) *responseCapture {
	return &responseCapture{
		ResponseWriter: w,
		statusCode:     200,
		body:           &bytes.Buffer{},
	}
}

func cacheSuccessfulResponse(store IdempotencyStore, key string, capture *responseCapture, w http.ResponseWriter) {
	if !shouldCacheResponse(capture.statusCode) {
		return
	}

	cached := &CachedResponse{
		StatusCode: capture.statusCode,
		Headers:    w.Header().Clone(),
		Body:       capture.body.Bytes(),
	}
	store.Set(key, cached)
}

func shouldCacheResponse(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
