// Package googlespeech provides a Google Cloud Speech-to-Text backed STT
// provider using the bidirectional StreamingRecognize API. It implements the
// stt.Provider interface.
//
// The underlying service closes streams after roughly five minutes; callers
// rotate sessions before the cap (see the speaker stream's rotation
// protocol). This package deliberately exposes none of the vendor response
// shape beyond stt.Result.
package googlespeech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/lingostream/lingostream/pkg/provider/stt"
)

const (
	// recognitionModel selects the long-form conversation model, the right
	// fit for meeting speech.
	recognitionModel = "latest_long"

	defaultSampleRate = 16000
	defaultLanguage   = "en-US"

	resultBuf = 64
	audioBuf  = 256
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithClientOptions passes additional Google API client options
// (e.g. option.WithCredentialsFile) to the underlying client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, opts...)
	}
}

// WithModel overrides the recognition model. Default is "latest_long".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// Provider implements stt.Provider backed by Google Cloud Speech-to-Text.
// It holds one shared API client; each StartStream call opens an independent
// gRPC stream on it.
type Provider struct {
	client     *speech.Client
	clientOpts []option.ClientOption
	model      string
}

// Compile-time assertion that Provider satisfies the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// New creates a Provider and dials the Speech API.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	p := &Provider{model: recognitionModel}
	for _, o := range opts {
		o(p)
	}
	client, err := speech.NewClient(ctx, p.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("googlespeech: new client: %w", err)
	}
	p.client = client
	return p, nil
}

// Close releases the shared API client. Open sessions must be closed first.
func (p *Provider) Close() error {
	return p.client.Close()
}

// StartStream opens a streaming recognition session configured for
// little-endian 16-bit PCM mono at cfg.SampleRateHertz.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	grpcStream, err := p.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("googlespeech: open stream: %w", err)
	}

	sampleRate := cfg.SampleRateHertz
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}
	language := cfg.LanguageCode
	if language == "" {
		language = defaultLanguage
	}

	if err := grpcStream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(sampleRate),
					LanguageCode:               language,
					AlternativeLanguageCodes:   cfg.AlternativeLanguageCodes,
					EnableAutomaticPunctuation: true,
					UseEnhanced:                true,
					Model:                      p.model,
				},
				InterimResults:  cfg.InterimResults,
				SingleUtterance: false,
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("googlespeech: send config: %w", err)
	}

	sess := &session{
		stream:  grpcStream,
		results: make(chan stt.Result, resultBuf),
		audio:   make(chan []byte, audioBuf),
		done:    make(chan struct{}),
	}
	sess.wg.Add(2)
	go sess.writeLoop(ctx)
	go sess.readLoop()

	return sess, nil
}

// session is a live streaming recognition session. It implements
// stt.SessionHandle.
type session struct {
	stream  speechpb.Speech_StreamingRecognizeClient
	results chan stt.Result
	audio   chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// SendAudio queues a PCM chunk for delivery to the recogniser.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("googlespeech: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("googlespeech: session is closed")
	}
}

// Results returns the channel of interim and final recognition results.
func (s *session) Results() <-chan stt.Result { return s.results }

// Err returns the terminal session error, valid once Results has closed.
func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close half-closes the send side so the provider flushes buffered audio,
// then waits for the read side to drain.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.stream.CloseSend()
		s.wg.Wait()
	})
	return nil
}

// writeLoop forwards queued audio chunks onto the gRPC stream.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: chunk,
				},
			}); err != nil {
				s.setErr(err)
				return
			}
		case <-ctx.Done():
			return
		case <-s.done:
			// Flush whatever is still queued before the half-close takes
			// effect, so trailing speech is not lost.
			for {
				select {
				case chunk := <-s.audio:
					if err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
						StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
							AudioContent: chunk,
						},
					}); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// readLoop receives recognition responses and forwards the top alternative
// of each result.
func (s *session) readLoop() {
	defer s.wg.Done()
	defer close(s.results)

	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.setErr(err)
			}
			return
		}
		for _, res := range resp.GetResults() {
			alts := res.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			out := stt.Result{
				Text:         alts[0].GetTranscript(),
				LanguageCode: res.GetLanguageCode(),
				Confidence:   float64(alts[0].GetConfidence()),
				IsFinal:      res.GetIsFinal(),
			}
			select {
			case s.results <- out:
			case <-s.done:
				// Receiver gone; keep draining so CloseSend completes.
			}
		}
	}
}

func (s *session) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
