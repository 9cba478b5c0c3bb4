package transcription

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"meeting-bot/internal/pkg/retry"
)

const DefaultPollTimeout = 10 * time.Minute

type audioFile struct {
	Path        string
	Name        string
	Ext         string
	Data        []byte
	ContentType string
}

// submission is what a backend returns after the first call: either the final payload or a handle to poll.
type submission struct {
	Payload []byte
	Handle  string
}

type pollState struct {
	Done    bool
	Payload []byte
}

type backend interface {
	submit(ctx context.Context, c *requester, audio audioFile) (submission, error)
	poll(ctx context.Context, c *requester, handle string) (pollState, error)
	normalize(payload []byte, audio audioFile) (Result, error)
}

// syncBackend is embedded by providers that answer inline and never poll.
type syncBackend struct{}

func (syncBackend) poll(context.Context, *requester, string) (pollState, error) {
	return pollState{}, errors.New("provider does not support polling")
}

type Option func(*options)

type options struct {
	baseURL      string
	client       *http.Client
	policy       retry.Policy
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *log.Logger
	now          func() time.Time
}

func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) { o.policy = p }
}

func WithPolling(interval, timeout time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.pollInterval = interval
		}
		if timeout > 0 {
			o.pollTimeout = timeout
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type adapter struct {
	name       string
	configured bool
	hint       string
	backend    backend
	client     *requester

	pollInterval time.Duration
	pollTimeout  time.Duration
	now          func() time.Time
}

func buildOptions(defaultBase string, defaultInterval time.Duration, opts []Option) options {
	o := options{
		baseURL:      defaultBase,
		policy:       retry.API(),
		pollInterval: defaultInterval,
		pollTimeout:  DefaultPollTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

func newAdapter(name string, configured bool, hint string, b backend, o options) *adapter {
	return &adapter{
		name:         name,
		configured:   configured,
		hint:         hint,
		backend:      b,
		client:       newRequester(name, o.client, o.policy, o.logger),
		pollInterval: o.pollInterval,
		pollTimeout:  o.pollTimeout,
		now:          o.now,
	}
}

func (a *adapter) Name() string {
	if a == nil {
		return ""
	}
	return a.name
}

func (a *adapter) Configured() bool {
	return a != nil && a.configured
}

func (a *adapter) Transcribe(ctx context.Context, audioFilePath string) (Result, error) {
	if a == nil || a.backend == nil {
		return Result{}, ErrNotConfigured
	}
	if !a.configured {
		return Result{}, fmt.Errorf("%w: %s. %s", ErrNotConfigured, a.name, a.hint)
	}

	start := a.now()
	audio, err := readAudio(audioFilePath)
	if err != nil {
		return Result{}, err
	}

	sub, err := a.backend.submit(ctx, a.client, audio)
	if err != nil {
		return Result{}, err
	}
	payload := sub.Payload
	if payload == nil {
		payload, err = a.await(ctx, sub.Handle)
		if err != nil {
			return Result{}, err
		}
	}

	res, err := a.backend.normalize(payload, audio)
	if err != nil {
		return Result{}, err
	}
	res.Provider = a.name
	res.ProcessingTime = a.now().Sub(start)
	if res.WordCount == 0 {
		res.WordCount = countWords(res.FullText)
	}
	if res.SpeakerCount == 0 {
		res.SpeakerCount = countSpeakers(res.Segments)
	}
	if res.Segments == nil {
		res.Segments = []Segment{}
	}
	return res, nil
}

func (a *adapter) await(ctx context.Context, handle string) ([]byte, error) {
	deadline := a.now().Add(a.pollTimeout)
	for {
		st, err := a.backend.poll(ctx, a.client, handle)
		if err != nil {
			return nil, err
		}
		if st.Done {
			return st.Payload, nil
		}
		if !a.now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrPollTimeout, a.name, a.pollTimeout)
		}

		t := time.NewTimer(a.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

var contentTypes = map[string]string{
	".webm": "audio/webm",
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

func readAudio(path string) (audioFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return audioFile{}, fmt.Errorf("%w: %s", ErrAudioNotFound, path)
		}
		return audioFile{}, fmt.Errorf("read audio: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	ct, ok := contentTypes[ext]
	if !ok {
		ct = "application/octet-stream"
	}
	return audioFile{
		Path:        path,
		Name:        filepath.Base(path),
		Ext:         ext,
		Data:        data,
		ContentType: ct,
	}, nil
}
