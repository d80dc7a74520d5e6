// Package request models REST calls against the backend: requests with an
// auth policy, responses with success and error classification, and the
// transport that carries them.
package request

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// AuthType selects how the Authorization header is resolved.
type AuthType int

const (
	AuthNone AuthType = iota
	AuthApp
	AuthMaster
	AuthSession
	// AuthDefault tries the active session, then the master secret.
	AuthDefault
	// AuthAll tries the active session, then the app secret, then the master secret.
	AuthAll
)

func (a AuthType) String() string {
	switch a {
	case AuthNone:
		return "none"
	case AuthApp:
		return "app"
	case AuthMaster:
		return "master"
	case AuthSession:
		return "session"
	case AuthDefault:
		return "default"
	case AuthAll:
		return "all"
	}
	return "unknown"
}

// Request is a single REST call. URL is either absolute or a path joined to
// the client's base URL. Body is sent as-is when it is a []byte, otherwise
// it is JSON encoded.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Query   url.Values
	Body    interface{}
	Timeout time.Duration
	Auth    AuthType
}

// SetHeader sets a header, allocating the map on first use.
func (r *Request) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = http.Header{}
	}
	r.Headers.Set(key, value)
}

// Response is the decoded result of a Request. Data holds the JSON decoded
// body, a string for non-JSON bodies, or nil when the body is empty.
type Response struct {
	StatusCode int
	Headers    http.Header
	Data       interface{}

	errOnce sync.Once
	err     error
}

// IsSuccess reports 2xx, 302 and 304 responses as successful.
func (r *Response) IsSuccess() bool {
	return (r.StatusCode >= 200 && r.StatusCode < 300) ||
		r.StatusCode == http.StatusFound ||
		r.StatusCode == http.StatusNotModified
}

// Header returns the first value of a header, case-insensitively.
func (r *Response) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	if v := r.Headers.Get(name); v != "" {
		return v
	}
	// Headers built by hand may not be canonicalized.
	for k, vs := range r.Headers {
		if len(vs) > 0 && strings.EqualFold(k, name) {
			return vs[0]
		}
	}
	return ""
}

// Err returns the classified error of an unsuccessful response, or nil. The
// result is computed once.
func (r *Response) Err() error {
	r.errOnce.Do(func() {
		if !r.IsSuccess() {
			r.err = Classify(r.StatusCode, r.Data)
		}
	})
	return r.err
}

// Object returns Data as a JSON object, or nil.
func (r *Response) Object() map[string]interface{} {
	m, _ := r.Data.(map[string]interface{})
	return m
}
