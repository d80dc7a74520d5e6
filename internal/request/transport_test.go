package request

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_JSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json; charset=utf-8", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		assert.Equal(t, `{"a":1}`, r.URL.Query().Get("query"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		body["_id"] = "new"

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	resp, err := NewHTTPTransport(nil).Execute(context.Background(), &Request{
		Method:  http.MethodPost,
		URL:     srv.URL + "/appdata/kid/books",
		Headers: http.Header{"X-Test": {"yes"}},
		Query:   url.Values{"query": {`{"a":1}`}},
		Body:    map[string]interface{}{"title": "Go"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"title": "Go", "_id": "new"}, resp.Data)
}

func TestHTTPTransport_RawBodyAndTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte{0, 1, 2}, raw)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("stored"))
	}))
	defer srv.Close()

	resp, err := NewHTTPTransport(srv.Client()).Execute(context.Background(), &Request{
		Method:  http.MethodPut,
		URL:     srv.URL + "/upload?signature=abc",
		Headers: http.Header{"Content-Type": {"application/octet-stream"}},
		Query:   url.Values{"x": {"1"}},
		Body:    []byte{0, 1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "stored", resp.Data)
}

func TestHTTPTransport_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Range", "bytes=0-99")
		w.WriteHeader(http.StatusPermanentRedirect)
	}))
	defer srv.Close()

	resp, err := NewHTTPTransport(nil).Execute(context.Background(), &Request{Method: http.MethodPut, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusPermanentRedirect, resp.StatusCode)
	assert.Nil(t, resp.Data)
	assert.Equal(t, "bytes=0-99", resp.Header("range"))
}

func TestHTTPTransport_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewHTTPTransport(nil).Execute(context.Background(), &Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Timeout: 20 * time.Millisecond,
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPTransport_BadBody(t *testing.T) {
	_, err := NewHTTPTransport(nil).Execute(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    "http://unused.invalid",
		Body:   map[string]interface{}{"ch": make(chan int)},
	})
	assert.ErrorContains(t, err, "failed to encode body")
}

func TestDecodeBody(t *testing.T) {
	assert.Nil(t, decodeBody("application/json", []byte("  ")))
	assert.Equal(t, []interface{}{1.0}, decodeBody("application/json", []byte("[1]")))
	assert.Equal(t, map[string]interface{}{"a": true}, decodeBody("", []byte(`{"a":true}`)))
	assert.Equal(t, "{broken", decodeBody("application/json", []byte("{broken")))
	assert.Equal(t, "<html/>", decodeBody("text/html", []byte("<html/>")))
}

func TestTransportFunc(t *testing.T) {
	var tr Transport = TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{StatusCode: 204}, nil
	})
	resp, err := tr.Execute(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
}

func TestHTTPTransport_DoesNotFollowResumeIncomplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/elsewhere" {
			t.Error("308 must not be followed")
		}
		w.Header().Set("Location", "/elsewhere")
		w.Header().Set("Range", "bytes=0-1")
		w.WriteHeader(http.StatusPermanentRedirect)
	}))
	defer srv.Close()

	resp, err := NewHTTPTransport(nil).Execute(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL + "/upload"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusPermanentRedirect, resp.StatusCode)
}
