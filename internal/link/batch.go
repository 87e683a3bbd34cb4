package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sync"
	"sync/atomic"
)

const (
	HealthPath        = "/healthz"
	TranscriptionPath = "/api/v1/transcriptions"

	batchQueue     = 8
	maxBatchReply  = 1 << 20
	defaultBlobExt = "wav"
)

// BatchDialer is the non-streaming fallback: every chunk is uploaded as one multipart request.
type BatchDialer struct {
	BaseURL  string
	Client   *http.Client
	Format   string
	Language string
	Logger   *slog.Logger
}

// Open checks the relay health endpoint; the link is open when the relay answers.
func (d *BatchDialer) Open(ctx context.Context, cb Callbacks) (Link, error) {
	base, err := httpBase(d.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLinkOpen, err)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+HealthPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLinkOpen, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLinkOpen, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: relay health status %d", ErrLinkOpen, resp.StatusCode)
	}

	format := d.Format
	if format == "" {
		format = defaultBlobExt
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	linkCtx, cancel := context.WithCancel(context.Background())
	l := &batchLink{
		url:      base + TranscriptionPath,
		client:   client,
		format:   format,
		language: d.Language,
		cb:       cb,
		logger:   logger.With("component", "batch_link"),
		queue:    make(chan []byte, batchQueue),
		ctx:      linkCtx,
		cancel:   cancel,
	}
	l.state.Store(int32(StateOpen))
	go l.run()
	return l, nil
}

type batchLink struct {
	url      string
	client   *http.Client
	format   string
	language string
	cb       Callbacks
	logger   *slog.Logger

	queue  chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32

	endOnce sync.Once
}

func (l *batchLink) State() State {
	return State(l.state.Load())
}

func (l *batchLink) Send(chunk []byte) {
	if l.State() != StateOpen {
		return
	}
	select {
	case l.queue <- chunk:
	case <-l.ctx.Done():
	default:
		l.logger.Warn("upload queue full, dropping chunk", "bytes", len(chunk))
	}
}

func (l *batchLink) Close() error {
	l.state.Store(int32(StateClosed))
	l.cancel()
	return nil
}

func (l *batchLink) finish(wasClean bool) {
	l.endOnce.Do(func() {
		l.state.Store(int32(StateClosed))
		l.cancel()
		if l.cb.OnClose != nil {
			l.cb.OnClose(wasClean)
		}
	})
}

// run uploads queued chunks one at a time so results arrive in capture order.
func (l *batchLink) run() {
	for {
		select {
		case <-l.ctx.Done():
			l.finish(true)
			return
		case chunk := <-l.queue:
			ev, err := l.upload(chunk)
			switch {
			case err == nil:
				if l.cb.OnEvent != nil {
					l.cb.OnEvent(ev)
				}
			case errors.Is(err, ErrBackendError), errors.Is(err, ErrMalformedEvent):
				l.logger.Warn("dropping batch result", "error", err)
			case l.ctx.Err() != nil:
				l.finish(true)
				return
			default:
				l.logger.Warn("batch upload failed", "error", err)
				l.finish(false)
				return
			}
		}
	}
}

func (l *batchLink) upload(chunk []byte) (Event, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "chunk."+l.format)
	if err != nil {
		return Event{}, err
	}
	if _, err := part.Write(chunk); err != nil {
		return Event{}, err
	}
	_ = mw.WriteField("format", l.format)
	if l.language != "" {
		_ = mw.WriteField("language", l.language)
	}
	if err := mw.Close(); err != nil {
		return Event{}, err
	}

	req, err := http.NewRequestWithContext(l.ctx, http.MethodPost, l.url, &body)
	if err != nil {
		return Event{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := l.client.Do(req)
	if err != nil {
		return Event{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBatchReply))
	if err != nil {
		return Event{}, err
	}

	ev, err := DecodeEvent(payload)
	if err != nil {
		if errors.Is(err, ErrMalformedEvent) && resp.StatusCode >= http.StatusBadRequest {
			return Event{}, fmt.Errorf("%w: status %d", ErrBackendError, resp.StatusCode)
		}
		return Event{}, err
	}
	ev.IsFinal = true
	return ev, nil
}
