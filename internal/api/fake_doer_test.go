package api

import (
	"io"
	"strings"
	"sync"
	"testing"

	http "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/require"
)

// fakeDoer records requests and answers them with handler
type fakeDoer struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	handler  func(req *http.Request) (*http.Response, error)
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.bodies = append(f.bodies, body)
	handler := f.handler
	f.mu.Unlock()

	return handler(req)
}

func (f *fakeDoer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeDoer) last() (*http.Request, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.requests)
	return f.requests[n-1], f.bodies[n-1]
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// chunkedBody returns one chunk per Read call
type chunkedBody struct {
	chunks []string
}

func (c *chunkedBody) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n < len(c.chunks[0]) {
		c.chunks[0] = c.chunks[0][n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func (c *chunkedBody) Close() error { return nil }

func streamResponse(chunks ...string) *http.Response {
	return &http.Response{
		StatusCode: 200,
		Status:     "200 OK",
		Header:     http.Header{"Content-Type": {"text/event-stream"}},
		Body:       &chunkedBody{chunks: chunks},
	}
}

// pipeResponse returns a stream whose body stays open until the request
// context ends. The returned writer feeds the body.
func pipeResponse(req *http.Request) (*http.Response, *io.PipeWriter) {
	pr, pw := io.Pipe()
	go func() {
		<-req.Context().Done()
		_ = pw.CloseWithError(req.Context().Err())
	}()
	return &http.Response{
		StatusCode: 200,
		Status:     "200 OK",
		Header:     http.Header{},
		Body:       pr,
	}, pw
}

func newTestClient(t *testing.T, doer *fakeDoer) *Client {
	t.Helper()
	c, err := NewClient("http://backend.test/api/", WithHTTPClient(doer))
	require.NoError(t, err)
	return c
}
