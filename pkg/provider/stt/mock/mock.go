// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify StartStream calls and hand out controlled sessions.
// Use Session to script recognition results and inspect the audio the caller
// sent.
//
// Example:
//
//	sess := &mock.Session{ResultsCh: make(chan stt.Result, 8)}
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess.ResultsCh <- stt.Result{Text: "hello", IsFinal: true}
//	close(sess.ResultsCh)
package mock

import (
	"context"
	"sync"

	"github.com/lingostream/lingostream/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by StartStream. If nil,
	// StartStream returns a new default Session with a buffered results
	// channel.
	Session stt.SessionHandle

	// Sessions, if non-empty, is consumed one handle per StartStream call and
	// takes precedence over Session. Useful for rotation tests that need a
	// distinct handle per open.
	Sessions []stt.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream in order.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns the next scripted session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if len(p.Sessions) > 0 {
		next := p.Sessions[0]
		p.Sessions = p.Sessions[1:]
		return next, nil
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{ResultsCh: make(chan stt.Result, 64)}, nil
}

// StartStreamCount returns the number of StartStream calls so far.
// Thread-safe.
func (p *Provider) StartStreamCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Calls returns a copy of all recorded StartStream calls. Thread-safe.
func (p *Provider) Calls() []StartStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StartStreamCall, len(p.StartStreamCalls))
	copy(out, p.StartStreamCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// Session is a mock implementation of stt.SessionHandle.
// Callers should pre-populate ResultsCh and close it to signal end-of-session.
type Session struct {
	mu sync.Mutex

	// ResultsCh is the channel returned by Results(). Callers own this
	// channel.
	ResultsCh chan stt.Result

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// TerminalErr is returned by Err.
	TerminalErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// CloseResults makes Close also close ResultsCh, mimicking a real
	// session's end-of-stream behavior.
	CloseResults bool

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	resultsClosed bool
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// Results returns ResultsCh.
func (s *Session) Results() <-chan stt.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ResultsCh
}

// Err returns TerminalErr.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TerminalErr
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if s.CloseResults && !s.resultsClosed {
		s.resultsClosed = true
		close(s.ResultsCh)
	}
	return s.CloseErr
}

// Closes returns the number of Close calls so far. Thread-safe.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// SentAudio returns copies of all chunks passed to SendAudio so far.
// Thread-safe.
func (s *Session) SentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.SendAudioCalls))
	for i, c := range s.SendAudioCalls {
		out[i] = c.Chunk
	}
	return out
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = nil
	s.CloseCallCount = 0
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)
