package capture

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

const chunkBuffer = 16

// producer reads PCM16 frames from r and groups them into cadence-sized chunks.
type producer struct {
	r       io.Reader
	release func() error
	enc     chunkEncoder
	cfg     Config
	logger  *slog.Logger

	chunks chan []byte
	done   chan struct{}
	exited chan struct{}
	paused atomic.Bool

	stopOnce sync.Once
}

func newProducer(r io.Reader, release func() error, enc chunkEncoder, cfg Config, logger *slog.Logger) *producer {
	p := &producer{
		r:       r,
		release: release,
		enc:     enc,
		cfg:     cfg,
		logger:  logger,
		chunks:  make(chan []byte, chunkBuffer),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go p.pump()
	return p
}

func (p *producer) Chunks() <-chan []byte {
	return p.chunks
}

func (p *producer) Pause() {
	p.paused.Store(true)
}

func (p *producer) Resume() {
	p.paused.Store(false)
}

// Stop ends the pump and releases the underlying process. Later calls are no-ops.
func (p *producer) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		close(p.done)
		if p.release != nil {
			err = p.release()
		}
		<-p.exited
	})
	return err
}

func (p *producer) pump() {
	defer close(p.exited)
	defer close(p.chunks)

	frameSize := p.cfg.frameBytes()
	perChunk := p.cfg.framesPerChunk()
	pending := make([][]byte, 0, perChunk)

	for {
		frame := make([]byte, frameSize)
		_, err := io.ReadFull(p.r, frame)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !p.stopped() {
				p.logger.Warn("audio read failed", "error", err)
			}
			return
		}

		if p.paused.Load() {
			if len(pending) > 0 {
				p.emit(pending)
				pending = pending[:0]
			}
			continue
		}

		pending = append(pending, frame)
		if len(pending) >= perChunk {
			if !p.emit(pending) {
				return
			}
			pending = pending[:0]
		}
	}
}

func (p *producer) emit(frames [][]byte) bool {
	chunk, err := p.enc.Encode(frames)
	if err != nil {
		p.logger.Warn("audio encode failed", "error", err, "frames", len(frames))
		return true
	}
	select {
	case p.chunks <- chunk:
		return true
	case <-p.done:
		return false
	}
}

func (p *producer) stopped() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
