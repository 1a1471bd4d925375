package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"aistudio/internal/domain"
)

func sseServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, emit func(string))) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		emit := func(data string) {
			fmt.Fprintf(w, "data: %s\n\n", data)
			if flusher != nil {
				flusher.Flush()
			}
		}
		handler(w, r, emit)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, ch Channel) []domain.StreamEvent {
	t.Helper()
	var out []domain.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for stream to end")
		}
	}
}

func TestClientGETStreamsUntilDone(t *testing.T) {
	var got domain.GenerationRequest
	srv := sseServer(t, func(_ http.ResponseWriter, r *http.Request, emit func(string)) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/generate/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("payload")), &got))

		emit(`{"type":"sse_open"}`)
		emit(`{"type":"progress","value":10}`)
		emit(`{"type":"log","text":"[INFO] loading"}`)
		emit(`{"type":"done","path":"outputs/cat_1.png"}`)
		emit(`{"type":"log","text":"after terminal"}`)
	})

	client := NewClient(Options{BaseURL: srv.URL + "/"})
	req := domain.GenerationRequest{Prompt: "a cat", Filename: "cat_1.png", Width: 512, Height: 512, Steps: 20}.Normalize()

	ch, err := client.Open(context.Background(), req)
	require.NoError(t, err)
	defer ch.Close()

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, domain.ProgressEvent(10), events[0])
	assert.Equal(t, domain.LogEvent("[INFO] loading"), events[1])
	assert.Equal(t, domain.DoneEvent("outputs/cat_1.png"), events[2])
	assert.Equal(t, req, got)
}

func TestClientPOSTSendsJSONBody(t *testing.T) {
	srv := sseServer(t, func(_ http.ResponseWriter, r *http.Request, emit func(string)) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req domain.GenerationRequest
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			assert.Equal(t, "dog.png", req.Filename)
		}
		emit(`{"type":"error","text":"boom","trace":"CUDA out of memory"}`)
	})

	client := NewClient(Options{BaseURL: srv.URL, Method: "post"})
	ch, err := client.Open(context.Background(), domain.GenerationRequest{Filename: "dog.png"})
	require.NoError(t, err)
	defer ch.Close()

	events := collect(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ErrorEvent("boom", "CUDA out of memory", domain.FailureKindUnknown), events[0])
}

func TestClientOpenFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "pipeline busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	ch, err := client.Open(context.Background(), domain.GenerationRequest{})
	require.Error(t, err)
	assert.Nil(t, ch)
	assert.ErrorIs(t, err, domain.ErrChannelOpen)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "pipeline busy")
}

func TestClientOpenFailsWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(Options{BaseURL: url}).Open(context.Background(), domain.GenerationRequest{})
	assert.ErrorIs(t, err, domain.ErrChannelOpen)
}

func TestClientSkipsMalformedFrames(t *testing.T) {
	srv := sseServer(t, func(_ http.ResponseWriter, _ *http.Request, emit func(string)) {
		emit(`{"type":`)
		emit(`{"type":"progress","value":50}`)
		emit(`{"type":"done","path":"ok.png"}`)
	})

	ch, err := NewClient(Options{BaseURL: srv.URL}).Open(context.Background(), domain.GenerationRequest{})
	require.NoError(t, err)
	defer ch.Close()

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventLog, events[0].Type)
	assert.Contains(t, events[0].Text, "malformed")
	assert.Equal(t, domain.ProgressEvent(50), events[1])
	assert.Equal(t, domain.DoneEvent("ok.png"), events[2])
}

func TestClientReportsDropWithoutTerminalEvent(t *testing.T) {
	srv := sseServer(t, func(_ http.ResponseWriter, _ *http.Request, emit func(string)) {
		emit(`{"type":"progress","value":30}`)
	})

	ch, err := NewClient(Options{BaseURL: srv.URL}).Open(context.Background(), domain.GenerationRequest{})
	require.NoError(t, err)
	defer ch.Close()

	events := collect(t, ch)
	require.Len(t, events, 2)
	assert.Equal(t, domain.ProgressEvent(30), events[0])
	assert.Equal(t, domain.EventTransportError, events[1].Type)
	assert.ErrorIs(t, events[1].Err, io.ErrUnexpectedEOF)
}

func TestClientCloseReleasesStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "data: {\"type\":\"progress\",\"value\":1}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(released)
	}))
	defer srv.Close()

	transport := &http.Transport{}
	defer transport.CloseIdleConnections()
	client := NewClient(Options{BaseURL: srv.URL, HTTPClient: &http.Client{Transport: transport}})

	ch, err := client.Open(context.Background(), domain.GenerationRequest{})
	require.NoError(t, err)

	first := <-ch.Events()
	assert.Equal(t, domain.ProgressEvent(1), first)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("server request was not cancelled after Close")
	}
	for range ch.Events() {
	}
}

func TestClientStopsWhenContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewClient(Options{BaseURL: srv.URL}).Open(ctx, domain.GenerationRequest{})
	require.NoError(t, err)
	defer ch.Close()

	cancel()
	events := collect(t, ch)
	for _, ev := range events {
		assert.Equal(t, domain.EventTransportError, ev.Type)
	}
}
