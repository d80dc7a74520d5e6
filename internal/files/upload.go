package files

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/syntrixbase/kinsync/internal/logging"
	"github.com/syntrixbase/kinsync/internal/metrics"
	"github.com/syntrixbase/kinsync/internal/request"
	"github.com/syntrixbase/kinsync/pkg/model"
)

const (
	// DefaultMaxBackoff bounds the retry delay for 5xx responses.
	DefaultMaxBackoff = 32 * time.Second

	HeaderContentType       = "Content-Type"
	HeaderContentRange      = "Content-Range"
	HeaderKinveyContentType = "X-Kinvey-Content-Type"

	// StatusResumeIncomplete is returned while an upload still misses bytes.
	StatusResumeIncomplete = 308
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Uploader runs the resumable upload protocol.
type Uploader struct {
	client     *request.Client
	appKey     string
	maxBackoff time.Duration
	sleep      Sleeper
	jitter     func() time.Duration
	logger     *slog.Logger
}

type Option func(*Uploader)

func WithMaxBackoff(d time.Duration) Option {
	return func(u *Uploader) {
		if d > 0 {
			u.maxBackoff = d
		}
	}
}

func WithSleeper(s Sleeper) Option {
	return func(u *Uploader) { u.sleep = s }
}

// WithJitter replaces the random 1..1000ms added to every backoff.
func WithJitter(fn func() time.Duration) Option {
	return func(u *Uploader) { u.jitter = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) { u.logger = logger }
}

func NewUploader(client *request.Client, appKey string, opts ...Option) *Uploader {
	u := &Uploader{
		client:     client,
		appKey:     appKey,
		maxBackoff: DefaultMaxBackoff,
		sleep:      sleepContext,
		jitter:     randomJitter,
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = logging.Component(u.logger, "upload")
	return u
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomJitter() time.Duration {
	return time.Duration(rand.Intn(1000)+1) * time.Millisecond
}

// State is the resumable position of an upload.
type State struct {
	// Start is the first byte still to send.
	Start int64
	// Count is the number of consecutive 5xx retries.
	Count int
}

// Target is where the bytes go, as returned by the metadata save.
type Target struct {
	URL     string
	Headers map[string]string
}

// Upload saves md, probes the upload URL and sends whatever the server is
// missing. The returned document is the saved metadata without the transient
// upload fields, with data attached under "_data".
func (u *Uploader) Upload(ctx context.Context, data []byte, md Metadata) (model.Document, error) {
	if md.Size == 0 {
		md.Size = int64(len(data))
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}

	saved, err := u.SaveFileMetadata(ctx, md)
	if err != nil {
		return nil, err
	}
	target, err := targetOf(saved)
	if err != nil {
		return nil, err
	}

	status, err := u.CheckUploadStatus(ctx, target, md.Size)
	if err != nil {
		return nil, err
	}
	switch status.StatusCode {
	case http.StatusOK, http.StatusCreated:
		u.logger.Debug("upload already complete", "id", saved.ID())
	case StatusResumeIncomplete:
		start := NextOffset(status.Header("Range"), md.Size)
		if _, err := u.UploadFile(ctx, target, data, md, State{Start: start}); err != nil {
			return nil, err
		}
	default:
		if err := status.Err(); err != nil {
			return nil, err
		}
		return nil, model.Errorf(model.ErrKinvey, "unexpected upload status %d", status.StatusCode)
	}

	delete(saved, fieldUploadURL)
	delete(saved, fieldRequiredHeaders)
	delete(saved, fieldExpiresAt)
	saved[fieldData] = data
	return saved, nil
}

// SaveFileMetadata creates (POST) or replaces (PUT by _id) the file
// metadata and returns the server's answer, which carries the upload URL.
func (u *Uploader) SaveFileMetadata(ctx context.Context, md Metadata) (model.Document, error) {
	if err := md.Validate(); err != nil {
		return nil, err
	}

	req := &request.Request{
		Method: http.MethodPost,
		URL:    "/blob/" + url.PathEscape(u.appKey),
		Body:   md.Document(),
		Auth:   request.AuthDefault,
	}
	if md.ID != "" {
		req.Method = http.MethodPut
		req.URL += "/" + url.PathEscape(md.ID)
	}
	req.SetHeader(HeaderKinveyContentType, md.MimeType)

	resp, err := u.client.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	doc := model.Document(resp.Object())
	if doc == nil {
		return nil, model.NewError(model.ErrKinvey, "file metadata response is not an object")
	}
	return doc, nil
}

// CheckUploadStatus asks how many bytes the server already holds. The
// response is returned whatever its status.
func (u *Uploader) CheckUploadStatus(ctx context.Context, target Target, size int64) (*request.Response, error) {
	req := u.newPut(target)
	req.SetHeader(HeaderContentRange, fmt.Sprintf("bytes */%d", size))
	req.Body = []byte{}
	return u.client.Do(ctx, req)
}

// UploadFile sends data from state.Start to the end. 5xx answers are retried
// after 2^count ms plus jitter while that stays under the max backoff; 308
// answers resume from the offset in their Range header. Any other failure
// is returned classified.
func (u *Uploader) UploadFile(ctx context.Context, target Target, data []byte, md Metadata, state State) (*request.Response, error) {
	size := int64(len(data))
	if md.Size > 0 && md.Size < size {
		size = md.Size
	}
	if size == 0 {
		return nil, model.NewError(model.ErrKinvey, "cannot upload an empty file")
	}
	mime := md.MimeType
	if mime == "" {
		mime = DefaultMimeType
	}

	for {
		start := state.Start
		if start < 0 || start >= size {
			start = 0
		}
		req := u.newPut(target)
		req.SetHeader(HeaderContentType, mime)
		req.SetHeader(HeaderContentRange, fmt.Sprintf("bytes %d-%d/%d", start, size-1, size))
		req.Body = data[start:size]

		metrics.UploadAttempts.Inc()
		resp, err := u.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		metrics.UploadBytes.Add(float64(size - start))

		switch {
		case resp.IsSuccess():
			return resp, nil

		case resp.StatusCode >= 500 && resp.StatusCode < 600:
			backoff := time.Duration(1<<uint(state.Count))*time.Millisecond + u.jitter()
			if backoff >= u.maxBackoff {
				u.logger.Warn("upload giving up", "status", resp.StatusCode, "retries", state.Count)
				return resp, resp.Err()
			}
			u.logger.Debug("upload failed, backing off", "status", resp.StatusCode, "backoff", backoff)
			metrics.UploadRetries.WithLabelValues(metrics.ReasonBackoff).Inc()
			if err := u.sleep(ctx, backoff); err != nil {
				return nil, model.WrapError(err)
			}
			state.Count++

		case resp.StatusCode == StatusResumeIncomplete:
			state.Start = NextOffset(resp.Header("Range"), size)
			state.Count = 0
			metrics.UploadRetries.WithLabelValues(metrics.ReasonResume).Inc()
			u.logger.Debug("upload incomplete, resuming", "offset", state.Start)

		default:
			return resp, resp.Err()
		}
	}
}

func (u *Uploader) newPut(target Target) *request.Request {
	req := &request.Request{Method: http.MethodPut, URL: target.URL, Auth: request.AuthNone}
	for k, v := range target.Headers {
		req.SetHeader(k, v)
	}
	return req
}

// NextOffset returns the byte after the upper bound of a "bytes=0-N" Range
// header, clamped to size-1. A missing or unreadable header restarts at 0.
func NextOffset(rangeHeader string, size int64) int64 {
	_, bounds, ok := strings.Cut(rangeHeader, "=")
	if !ok {
		return 0
	}
	_, upper, ok := strings.Cut(bounds, "-")
	if !ok {
		return 0
	}
	end, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil || end < 0 {
		return 0
	}
	next := end + 1
	if next > size-1 {
		next = size - 1
	}
	return next
}

func targetOf(saved model.Document) (Target, error) {
	rawURL, _ := saved[fieldUploadURL].(string)
	if rawURL == "" {
		return Target{}, model.NewError(model.ErrKinvey, "file metadata response has no upload url")
	}
	t := Target{URL: rawURL, Headers: map[string]string{}}
	if headers, ok := saved[fieldRequiredHeaders].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				t.Headers[k] = s
			}
		}
	}
	return t, nil
}
