package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/eleven-am/livescribe/internal/archive"
	"github.com/eleven-am/livescribe/internal/audio"
	"github.com/eleven-am/livescribe/internal/capture"
	"github.com/eleven-am/livescribe/internal/dto"
	"github.com/eleven-am/livescribe/internal/shared"
	"github.com/eleven-am/livescribe/internal/tracking"
	"github.com/eleven-am/livescribe/internal/transcription"
)

const maxFileSize = 25 * 1024 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// BatchFunc transcribes one uploaded blob.
type BatchFunc func(ctx context.Context, req transcription.BatchRequest) (string, error)

type Options struct {
	Language string
	Model    string
}

type Handler struct {
	streams  transcription.Factory
	batch    BatchFunc
	tracker  *tracking.Store
	segments *archive.Store
	opts     Options
	logger   *slog.Logger
	active   atomic.Int64
}

func NewHandler(streams transcription.Factory, batch BatchFunc, tracker *tracking.Store, segments *archive.Store, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		streams:  streams,
		batch:    batch,
		tracker:  tracker,
		segments: segments,
		opts:     opts,
		logger:   logger.With("component", "relay"),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, api *echo.Group, auth echo.MiddlewareFunc) {
	e.GET("/transcribe", h.HandleStream, auth)
	api.POST("/transcriptions", h.HandleTranscriptions, auth)
}

// ActiveConnections is the number of websocket clients currently relayed.
func (h *Handler) ActiveConnections() int64 {
	return h.active.Load()
}

func (h *Handler) language(requested string) string {
	if requested != "" {
		return requested
	}
	return h.opts.Language
}

// HandleStream relays a live audio stream to the speech-to-text sidecar
// @Summary      Stream audio for transcription
// @Description  Upgrades to a websocket. Binary messages are audio chunks in the requested encoding (opus chunks carry length-prefixed packets). The server replies with {transcript,isFinal} and {error} JSON text messages.
// @Tags         transcribe
// @Param        encoding query string false "Chunk encoding: opus, pcm16 or wav" default(opus)
// @Param        language query string false "Language code of the audio"
// @Param        sample_rate query int false "Sample rate of pcm16 chunks" default(16000)
// @Success      101 "Switching protocols"
// @Failure      400 {object} dto.ErrorResponse "Unsupported encoding"
// @Failure      401 {object} dto.ErrorResponse "Invalid or missing API token"
// @Security     BearerAuth
// @Router       /transcribe [get]
func (h *Handler) HandleStream(c echo.Context) error {
	encName := c.QueryParam("encoding")
	if encName == "" {
		encName = string(capture.EncodingOpus)
	}
	enc, err := capture.ParseEncoding(encName)
	if err != nil {
		return shared.BadRequest("invalid_encoding", "encoding must be opus, pcm16 or wav")
	}
	pcmRate, _ := strconv.Atoi(c.QueryParam("sample_rate"))

	decode, err := newChunkDecoder(enc, pcmRate)
	if err != nil {
		h.logger.Error("failed to create decoder", "error", err, "encoding", enc)
		return shared.InternalError("decoder_failed", "Failed to prepare audio decoder")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return nil
	}

	language := h.language(c.QueryParam("language"))
	rec := &tracking.Record{
		Encoding:   string(enc),
		Language:   language,
		RemoteAddr: c.RealIP(),
	}
	if h.tracker != nil {
		if err := h.tracker.Create(c.Request().Context(), rec); err != nil {
			h.logger.Warn("failed to track session", "error", err)
		}
	}
	if rec.ID == "" {
		rec.ID = shared.NewID("rly_")
	}

	h.active.Add(1)
	defer h.active.Add(-1)

	conn := newStreamConn(ws, rec.ID, decode, h.tracker, h.segments, h.logger)
	h.logger.Info("stream connected", "session_id", rec.ID, "encoding", enc)

	stt, err := h.streams(transcription.SessionOptions{
		Encoding:   string(capture.EncodingPCM16),
		SampleRate: SidecarSampleRate,
		Language:   language,
		Model:      h.opts.Model,
		Partials:   true,
	}, conn.callbacks())
	if err != nil {
		h.logger.Error("failed to open sidecar stream", "error", err)
		conn.attach(nil)
		conn.fail(backendUnavailable)
		conn.writePump()
		conn.finish()
		return nil
	}
	conn.attach(stt)

	go conn.writePump()
	conn.readPump()
	conn.finish()

	h.logger.Info("stream disconnected", "session_id", rec.ID, "audio_ms", conn.offsetMs())
	return nil
}

// HandleTranscriptions transcribes one uploaded audio chunk
// @Summary      Create transcription
// @Description  Transcribes a single audio blob. Used by clients in chunked batch mode.
// @Tags         transcribe
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "Audio chunk (max 25MB)"
// @Param        format formData string false "Chunk encoding: wav, pcm16 or opus" default(wav)
// @Param        language formData string false "Language code of the audio"
// @Success      200 {object} dto.TranscriptionResponse "Final transcript of the chunk"
// @Failure      400 {object} dto.ErrorResponse "Invalid request (missing file, bad format)"
// @Failure      401 {object} dto.ErrorResponse "Invalid or missing API token"
// @Failure      413 {object} dto.ErrorResponse "File too large (max 25MB)"
// @Failure      502 {object} dto.ErrorResponse "Transcription backend failed"
// @Security     BearerAuth
// @Router       /api/v1/transcriptions [post]
func (h *Handler) HandleTranscriptions(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return shared.BadRequest("missing_file", "File is required")
	}
	if file.Size > maxFileSize {
		return shared.TooLarge("file_too_large", "File too large (max 25MB)")
	}

	format := c.FormValue("format")
	if format == "" {
		format = string(capture.EncodingWAV)
	}
	enc, err := capture.ParseEncoding(format)
	if err != nil {
		return shared.BadRequest("invalid_format", "format must be wav, pcm16 or opus")
	}

	src, err := file.Open()
	if err != nil {
		return shared.InternalError("file_error", "Failed to open file")
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return shared.InternalError("file_error", "Failed to read file")
	}

	req, err := h.batchRequest(enc, data)
	if err != nil {
		return shared.BadRequest("invalid_audio", "Audio could not be decoded")
	}
	req.Language = h.language(c.FormValue("language"))
	req.Model = h.opts.Model

	text, err := h.batch(c.Request().Context(), req)
	h.recordBatch(c.Request().Context(), err != nil)
	if err != nil {
		h.logger.Error("transcription failed", "error", err, "format", enc)
		return shared.BadGateway("transcription_failed", "Transcription failed")
	}

	return c.JSON(http.StatusOK, dto.TranscriptionResponse{Transcript: text})
}

// batchRequest forwards wav blobs untouched and converts the raw encodings to PCM16.
func (h *Handler) batchRequest(enc capture.Encoding, data []byte) (transcription.BatchRequest, error) {
	if enc == capture.EncodingWAV {
		return transcription.BatchRequest{Format: string(enc), AudioData: data}, nil
	}

	decode, err := newChunkDecoder(enc, SidecarSampleRate)
	if err != nil {
		return transcription.BatchRequest{}, err
	}
	samples, err := decode(data)
	if err != nil {
		return transcription.BatchRequest{}, err
	}
	return transcription.BatchRequest{
		Format:     string(capture.EncodingPCM16),
		SampleRate: SidecarSampleRate,
		AudioData:  audio.Int16ToPCMBytes(samples),
	}, nil
}

func (h *Handler) recordBatch(ctx context.Context, failed bool) {
	if h.tracker == nil {
		return
	}
	if err := h.tracker.IncrementBatch(ctx, failed); err != nil {
		h.logger.Warn("failed to record batch metric", "error", err)
	}
}
