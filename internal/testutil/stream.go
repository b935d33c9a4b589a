package testutil

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// EventStream reads server-sent events from a long-lived response.
type EventStream struct {
	resp   *http.Response
	reader *bufio.Reader
	cancel context.CancelFunc
	once   sync.Once
}

// Stream opens a server-sent event stream. The client's overall timeout is
// not applied; each Next call carries its own.
func (c *Client) Stream(t *testing.T, path string) *EventStream {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	require.NoError(t, err, "failed to create request")
	req.Header.Set("Accept", "text/event-stream")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := (&http.Client{Transport: c.HTTPClient.Transport}).Do(req)
	if err != nil {
		cancel()
	}
	require.NoError(t, err, "stream request failed")

	s := &EventStream{resp: resp, reader: bufio.NewReader(resp.Body), cancel: cancel}
	t.Cleanup(s.Close)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return s
}

// Next returns the next event, skipping comment lines, and fails the test
// when none arrives within timeout.
func (s *EventStream) Next(t *testing.T, timeout time.Duration) Event {
	t.Helper()

	type result struct {
		event Event
		err   error
	}
	done := make(chan result, 1)
	go func() {
		var ev Event
		for {
			line, err := s.reader.ReadString('\n')
			if err != nil {
				done <- result{err: err}
				return
			}
			line = strings.TrimRight(line, "\r\n")
			switch {
			case line == "":
				if ev.Name != "" || ev.Data != "" {
					done <- result{event: ev}
					return
				}
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "event:"):
				ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				ev.Data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
	}()

	select {
	case r := <-done:
		require.NoError(t, r.err, "stream ended")
		return r.event
	case <-time.After(timeout):
		s.Close()
		require.FailNow(t, "no event received", "waited %s", timeout)
		return Event{}
	}
}

func (s *EventStream) Close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.resp.Body.Close()
	})
}
