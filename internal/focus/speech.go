package focus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/code-100-precent/FocusBuddy/pkg/realtime"
	"go.uber.org/zap"
)

// Stream is a connected realtime speech session.
type Stream interface {
	SendAudio(pcm []byte) error
	Say(text string) error
	Transcripts() <-chan realtime.Transcript
	Done() <-chan struct{}
	Err() error
	Close()
}

// Dialer opens a Stream.
type Dialer func(ctx context.Context) (Stream, error)

// AudioSource feeds microphone PCM to a callback until stopped.
type AudioSource interface {
	Start(onFrame func(pcm []byte)) error
	Stop()
}

// RealtimeDialer dials the realtime API with cfg.
func RealtimeDialer(cfg realtime.Config) Dialer {
	return func(ctx context.Context) (Stream, error) {
		c := realtime.NewClient(&cfg)
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

// SpeechOptions tunes reconnects.
type SpeechOptions struct {
	// MaxReconnect bounds the time spent reconnecting after one drop.
	MaxReconnect    time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Speech bridges the microphone and the realtime stream. User transcripts go
// to respond; check-ins are spoken through Notify. A dropped stream is
// redialed with exponential backoff and never ends the session.
type Speech struct {
	dial    Dialer
	audio   AudioSource
	respond func(text string)
	opts    SpeechOptions
	logger  *zap.Logger

	stream atomic.Pointer[streamBox]
	cancel context.CancelFunc
	wg     sync.WaitGroup
	dials  atomic.Int64
}

type streamBox struct{ s Stream }

// NewSpeech creates a bridge. audio may be nil when only speaking is wanted.
func NewSpeech(dial Dialer, audio AudioSource, respond func(text string), opts SpeechOptions, logger *zap.Logger) *Speech {
	if logger == nil {
		logger = zap.L()
	}
	if opts.MaxReconnect <= 0 {
		opts.MaxReconnect = 2 * time.Minute
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 30 * time.Second
	}
	return &Speech{dial: dial, audio: audio, respond: respond, opts: opts, logger: logger.Named("speech")}
}

// Start begins connecting in the background and returns at once. The first
// connection uses the same backoff as reconnects.
func (s *Speech) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	if s.audio != nil {
		if err := s.audio.Start(s.sendAudio); err != nil {
			s.logger.Warn("microphone unavailable, speech replies disabled", zap.Error(err))
		}
	}
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop ends streaming and waits for the reader.
func (s *Speech) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	if s.audio != nil {
		s.audio.Stop()
	}
	if box := s.stream.Swap(nil); box != nil {
		box.s.Close()
	}
	s.wg.Wait()
}

// Notify speaks a check-in prompt.
func (s *Speech) Notify(_ context.Context, _ string, prompt string) error {
	box := s.stream.Load()
	if box == nil {
		return errs.StreamFailure(errors.New("not connected"))
	}
	if err := box.s.Say(prompt); err != nil {
		return errs.StreamFailure(err)
	}
	return nil
}

// Dials counts connection attempts.
func (s *Speech) Dials() int64 {
	return s.dials.Load()
}

func (s *Speech) sendAudio(pcm []byte) {
	box := s.stream.Load()
	if box == nil {
		return
	}
	// dropped frames during a reconnect are expected
	_ = box.s.SendAudio(pcm)
}

func (s *Speech) connect(ctx context.Context) (Stream, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialInterval
	b.MaxInterval = s.opts.MaxInterval

	stream, err := backoff.Retry(ctx, func() (Stream, error) {
		s.dials.Add(1)
		return s.dial(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(s.opts.MaxReconnect),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("realtime connect failed, retrying", zap.Error(err), zap.Duration("in", next))
		}),
	)
	if err != nil {
		return nil, errs.StreamFailure(fmt.Errorf("connect realtime: %w", err))
	}
	return stream, nil
}

func (s *Speech) run(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		if box := s.stream.Swap(nil); box != nil {
			box.s.Close()
		}
	}()
	for reconnect := false; ; reconnect = true {
		stream, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("realtime connect gave up", zap.Error(err))
			}
			return
		}
		s.stream.Store(&streamBox{s: stream})
		if reconnect {
			s.logger.Info("realtime stream reconnected")
		}

		s.consume(ctx, stream)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("realtime stream dropped, reconnecting", zap.Error(stream.Err()))
		s.stream.Store(nil)
		stream.Close()
	}
}

func (s *Speech) consume(ctx context.Context, stream Stream) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stream.Done():
			return
		case tr, ok := <-stream.Transcripts():
			if !ok {
				return
			}
			if tr.Role != realtime.RoleUser || tr.Text == "" {
				continue
			}
			s.respond(tr.Text)
		}
	}
}
