package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"aistudio/internal/domain"
	"aistudio/internal/infra"
)

const (
	MethodGET  = http.MethodGet
	MethodPOST = http.MethodPost

	streamPath = "/api/generate/stream"
)

// Options configures the HTTP event-stream client.
type Options struct {
	BaseURL string
	// Method is GET (payload in the query string) or POST (payload as body).
	Method     string
	HTTPClient *http.Client
	Logger     *infra.Logger
	// Buffer is the number of decoded events held before the reader blocks.
	Buffer int
}

// Client opens generation streams against the synthesis server.
type Client struct {
	baseURL    string
	method     string
	httpClient *http.Client
	logger     *infra.Logger
	buffer     int
}

// NewClient builds a client. The default HTTP client has no overall timeout
// because a stream legitimately stays open for minutes; the attempt loop
// bounds each subscription instead.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = "http://127.0.0.1:8000"
	}
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method != MethodPOST {
		method = MethodGET
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := infra.Component(opts.Logger, "stream")
	return &Client{
		baseURL:    base,
		method:     method,
		httpClient: client,
		logger:     logger,
		buffer:     opts.Buffer,
	}
}

// Open subscribes to a new generation job for req.
func (c *Client) Open(ctx context.Context, req domain.GenerationRequest) (Channel, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", domain.ErrChannelOpen, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	httpReq, err := c.newRequest(streamCtx, payload)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelOpen, err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelOpen, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: http %d: %s", domain.ErrChannelOpen, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	ch := newPump(c.buffer, cancel)
	go c.read(ch, resp.Body, req.Filename)
	return ch, nil
}

func (c *Client) newRequest(ctx context.Context, payload []byte) (*http.Request, error) {
	endpoint := c.baseURL + streamPath
	var (
		req *http.Request
		err error
	)
	if c.method == MethodPOST {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		q := url.Values{}
		q.Set("payload", string(payload))
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	return req, nil
}

// read decodes frames until a terminal event, the end of the body, or Close.
func (c *Client) read(ch *pump, body io.ReadCloser, filename string) {
	defer ch.finish()
	defer body.Close()

	frames := newFrameReader(body)
	for {
		data, err := frames.Next()
		if err != nil {
			if ch.closed() {
				return
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			c.logger.Warn().Err(err).Str("filename", filename).Msg("stream: connection ended without terminal event")
			ch.send(domain.TransportErrorEvent(err))
			return
		}

		ev, err := decodeEvent(data)
		if err != nil {
			if errors.Is(err, errIgnoredFrame) {
				continue
			}
			c.logger.Warn().Err(err).Str("data", truncate(data, 256)).Msg("stream: ignoring malformed event")
			if !ch.send(domain.LogEvent("[WARN] ignored malformed stream event: " + truncate(data, 120))) {
				return
			}
			continue
		}
		if !ch.send(ev) {
			return
		}
		if ev.IsTerminal() {
			return
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Opener = (*Client)(nil)
