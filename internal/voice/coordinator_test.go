package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
	"github.com/hammamikhairi/secretkeeper/internal/timer"
)

// ── fakes ───────────────────────────────────────────────────────

type fakeTask struct {
	once sync.Once
	done chan struct{}
}

func newFakeTask() *fakeTask { return &fakeTask{done: make(chan struct{})} }

func (t *fakeTask) Cancel()               { t.once.Do(func() { close(t.done) }) }
func (t *fakeTask) Done() <-chan struct{} { return t.done }

type fakeCapture struct {
	h    domain.ListenHandlers
	task *fakeTask
}

type fakeUtterance struct {
	text string
	opts domain.SpeakOptions
	h    domain.SpeakHandlers
	task *fakeTask
}

// fakeSpeech mimics the speech wrapper: stopping a capture or an
// utterance fires its OnEnd, like the host engines do.
type fakeSpeech struct {
	caps domain.Capabilities

	mu            sync.Mutex
	refuseSpeak   bool
	holdRelease   bool // stopped captures stay open until releaseHeld
	captures      []*fakeCapture
	active        *fakeCapture
	held          *fakeCapture
	utterances    []*fakeUtterance
	speaking      *fakeUtterance
	stopListening int
	stopSpeaking  int
}

func newFakeSpeech() *fakeSpeech {
	return &fakeSpeech{caps: domain.Capabilities{
		SpeechRecognitionSupported: true,
		SpeechSynthesisSupported:   true,
		VoiceCount:                 2,
		EnglishVoiceCount:          1,
	}}
}

func (f *fakeSpeech) DetectCapabilities(context.Context) domain.Capabilities { return f.caps }

func (f *fakeSpeech) StartListening(h domain.ListenHandlers) (domain.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active != nil {
		return nil, false
	}
	c := &fakeCapture{h: h, task: newFakeTask()}
	f.captures = append(f.captures, c)
	f.active = c
	return c.task, true
}

func (f *fakeSpeech) StopListening() {
	f.mu.Lock()
	c := f.active
	f.active = nil
	f.stopListening++
	if c != nil && f.holdRelease {
		f.held = c
		c = nil
	}
	f.mu.Unlock()
	if c != nil {
		c.task.Cancel()
		c.h.OnEnd()
	}
}

// releaseHeld lets a capture held open by holdRelease finish.
func (f *fakeSpeech) releaseHeld(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	c := f.held
	f.held = nil
	f.mu.Unlock()
	require.NotNil(t, c, "no capture held open")
	c.task.Cancel()
	c.h.OnEnd()
}

func (f *fakeSpeech) Speak(text string, opts domain.SpeakOptions, h domain.SpeakHandlers) (domain.Task, bool) {
	f.mu.Lock()
	if f.refuseSpeak {
		f.mu.Unlock()
		h.OnError("Speech synthesis not supported")
		return nil, false
	}
	u := &fakeUtterance{text: text, opts: opts, h: h, task: newFakeTask()}
	f.utterances = append(f.utterances, u)
	f.speaking = u
	f.mu.Unlock()
	return u.task, true
}

func (f *fakeSpeech) StopSpeaking() {
	f.mu.Lock()
	u := f.speaking
	f.speaking = nil
	f.stopSpeaking++
	f.mu.Unlock()
	if u != nil {
		u.task.Cancel()
		u.h.OnEnd()
	}
}

func (f *fakeSpeech) current(t *testing.T) *fakeCapture {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotNil(t, f.active, "no active capture")
	return f.active
}

func (f *fakeSpeech) emit(t *testing.T, transcript string, final bool) {
	t.Helper()
	f.current(t).h.OnResult(domain.Hypothesis{Transcript: transcript, IsFinal: final, Confidence: 1})
}

// endCapture ends the active capture on its own, as after silence.
func (f *fakeSpeech) endCapture(t *testing.T) {
	t.Helper()
	c := f.current(t)
	f.mu.Lock()
	f.active = nil
	f.mu.Unlock()
	c.task.Cancel()
	c.h.OnEnd()
}

func (f *fakeSpeech) failCapture(t *testing.T, msg string) {
	t.Helper()
	c := f.current(t)
	f.mu.Lock()
	f.active = nil
	f.mu.Unlock()
	c.h.OnError(msg)
	c.task.Cancel()
	c.h.OnEnd()
}

func (f *fakeSpeech) finishSpeaking(t *testing.T, errMsg string) {
	t.Helper()
	f.mu.Lock()
	u := f.speaking
	f.speaking = nil
	f.mu.Unlock()
	require.NotNil(t, u, "nothing is being spoken")
	u.task.Cancel()
	if errMsg != "" {
		u.h.OnError(errMsg)
		return
	}
	u.h.OnEnd()
}

func (f *fakeSpeech) captureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.captures)
}

func (f *fakeSpeech) listening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active != nil
}

func (f *fakeSpeech) spoken() []*fakeUtterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeUtterance(nil), f.utterances...)
}

func (f *fakeSpeech) isSpeaking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speaking != nil
}

type callResult struct {
	reply string
	err   error
}

// pendingCall is one remote call held open until the test answers it.
// Cancelling its context does not resolve it.
type pendingCall struct {
	msg  string
	ctx  context.Context
	resp chan callResult
}

func (p *pendingCall) reply(s string) { p.resp <- callResult{reply: s} }
func (p *pendingCall) fail(err error) { p.resp <- callResult{err: err} }
func (p *pendingCall) canceled() bool { return p.ctx.Err() != nil }

type fakeChat struct {
	calls chan *pendingCall
	stop  chan struct{}
	n     atomic.Int32
}

func newFakeChat() *fakeChat {
	return &fakeChat{calls: make(chan *pendingCall, 16), stop: make(chan struct{})}
}

func (f *fakeChat) Send(ctx context.Context, msg string) (string, error) {
	f.n.Add(1)
	p := &pendingCall{msg: msg, ctx: ctx, resp: make(chan callResult, 1)}
	f.calls <- p
	select {
	case r := <-p.resp:
		return r.reply, r.err
	case <-f.stop:
		return "", context.Canceled
	}
}

func (f *fakeChat) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case p := <-f.calls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no remote call made")
		return nil
	}
}

func (f *fakeChat) count() int { return int(f.n.Load()) }

// ── helpers ─────────────────────────────────────────────────────

func testLogger() *logger.Logger {
	return logger.New(logger.LevelOff, nil)
}

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
}

type harness struct {
	c     *Coordinator
	sp    *fakeSpeech
	chat  *fakeChat
	clock *timer.Fake
}

func setup(t *testing.T, sp *fakeSpeech) *harness {
	t.Helper()
	chat := newFakeChat()
	clock := timer.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	var svc domain.SpeechService
	if sp != nil {
		svc = sp
	}
	c := New(svc, chat, testLogger(), WithClock(clock), WithIDs(sequentialIDs()))

	t.Cleanup(func() { close(chat.stop) })
	t.Cleanup(c.Close)
	return &harness{c: c, sp: sp, chat: chat, clock: clock}
}

// flush returns once every input queued so far has been handled.
func (h *harness) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.send(cmdFlush, ""))
}

func (h *harness) state(t *testing.T) domain.ConversationState {
	t.Helper()
	s := h.c.State()
	requireOneActivity(t, s)
	return s
}

func (h *harness) waitFor(t *testing.T, want domain.VoiceState) domain.ConversationState {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.c.State().Voice == want
	}, 2*time.Second, 5*time.Millisecond, "never reached %s", want)
	return h.state(t)
}

// say delivers a final transcript and lets the settle window pass.
func (h *harness) say(t *testing.T, text string) {
	t.Helper()
	h.sp.emit(t, text, true)
	h.flush(t)
	h.clock.Advance(timer.DefaultSettleWindow)
	h.flush(t)
}

// toSpeaking runs one typed turn up to the spoken reply.
func (h *harness) toSpeaking(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.Submit("Hello"))
	h.chat.next(t).reply("Hi there!")
	h.waitFor(t, domain.VoiceSpeaking)
}

func requireOneActivity(t *testing.T, s domain.ConversationState) {
	t.Helper()
	n := 0
	for _, b := range []bool{s.Listening, s.Speaking, s.Processing} {
		if b {
			n++
		}
	}
	require.LessOrEqual(t, n, 1, "more than one activity flag set: %+v", s)
}

func contents(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

// ── turn flow ───────────────────────────────────────────────────

func TestVoiceTurnHello(t *testing.T) {
	h := setup(t, newFakeSpeech())

	require.NoError(t, h.c.Start())
	s := h.state(t)
	require.Equal(t, domain.VoiceListening, s.Voice)
	require.True(t, s.Listening)

	h.sp.emit(t, "Hel", false)
	h.flush(t)
	s = h.state(t)
	require.Equal(t, "Hel", s.CurrentTranscript)
	require.Equal(t, domain.VoiceListening, s.Voice)

	h.sp.emit(t, " Hello ", true)
	h.flush(t)
	s = h.state(t)
	require.Equal(t, domain.VoiceDebouncing, s.Voice)
	require.False(t, s.Listening || s.Processing)
	require.True(t, h.sp.listening(), "capture stays open while debouncing")

	h.clock.Advance(timer.DefaultSettleWindow)
	h.flush(t)
	s = h.state(t)
	require.Equal(t, domain.VoiceProcessing, s.Voice)
	require.Empty(t, s.CurrentTranscript)
	require.Equal(t, []string{"user:Hello"}, contents(s.Messages))
	require.False(t, h.sp.listening(), "capture must stop while processing")

	call := h.chat.next(t)
	require.Equal(t, "Hello", call.msg)
	call.reply("Hi there!")

	s = h.waitFor(t, domain.VoiceSpeaking)
	require.Equal(t, []string{"user:Hello", "assistant:Hi there!"}, contents(s.Messages))
	require.True(t, s.Messages[1].IsPlaying)
	require.Equal(t, "m2", s.Messages[1].ID)
	require.Equal(t, h.clock.Now(), s.Messages[1].Timestamp)

	spoken := h.sp.spoken()
	require.Len(t, spoken, 1)
	require.Equal(t, "Hi there!", spoken[0].text)
	require.Equal(t, DefaultSpeakRate, spoken[0].opts.Rate)

	h.sp.finishSpeaking(t, "")
	s = h.waitFor(t, domain.VoiceIdle)
	require.False(t, s.Messages[1].IsPlaying)
	require.Empty(t, s.Error)

	// Listening is not resumed after speaking.
	h.flush(t)
	require.Equal(t, 1, h.sp.captureCount())
	require.False(t, h.sp.listening())
	require.Equal(t, domain.VoiceIdle, h.state(t).Voice)
}

func TestFinalsDebounceToLatest(t *testing.T) {
	h := setup(t, newFakeSpeech())
	require.NoError(t, h.c.Start())

	h.sp.emit(t, "I went", true)
	h.flush(t)
	h.clock.Advance(400 * time.Millisecond)
	h.sp.emit(t, "I went to the store", true)
	h.flush(t)
	h.clock.Advance(400 * time.Millisecond)
	h.flush(t)

	require.Equal(t, domain.VoiceDebouncing, h.state(t).Voice)
	require.Zero(t, h.chat.count())

	h.clock.Advance(300 * time.Millisecond)
	h.flush(t)
	require.Equal(t, domain.VoiceProcessing, h.state(t).Voice)

	call := h.chat.next(t)
	require.Equal(t, "I went to the store", call.msg)
	require.Equal(t, []string{"user:I went to the store"}, contents(h.state(t).Messages))

	h.clock.Advance(time.Second)
	h.flush(t)
	require.Equal(t, 1, h.chat.count())
}

func TestEmptyFinalReturnsIdle(t *testing.T) {
	h := setup(t, newFakeSpeech())
	require.NoError(t, h.c.Start())

	h.say(t, "   ")

	s := h.state(t)
	require.Equal(t, domain.VoiceIdle, s.Voice)
	require.Empty(t, s.Messages)
	require.False(t, h.sp.listening())
	require.Zero(t, h.chat.count())
}

func TestCaptureEndWhileDebouncingStillSends(t *testing.T) {
	h := setup(t, newFakeSpeech())
	require.NoError(t, h.c.Start())

	h.sp.emit(t, "Good morning", true)
	h.sp.endCapture(t)
	h.flush(t)
	require.Equal(t, domain.VoiceDebouncing, h.state(t).Voice)

	h.clock.Advance(timer.DefaultSettleWindow)
	h.flush(t)
	require.Equal(t, domain.VoiceProcessing, h.state(t).Voice)
	require.Equal(t, "Good morning", h.chat.next(t).msg)
}

func TestCaptureEndWhileListening(t *testing.T) {
	h := setup(t, newFakeSpeech())
	require.NoError(t, h.c.Start())

	h.sp.emit(t, "um", false)
	h.sp.endCapture(t)
	h.flush(t)

	s := h.state(t)
	require.Equal(t, domain.VoiceIdle, s.Voice)
	require.Empty(t, s.CurrentTranscript)
	require.Empty(t, s.Error)
}

func TestCaptureErrorShowsBanner(t *testing.T) {
	h := setup(t, newFakeSpeech())
	require.NoError(t, h.c.Start())

	h.sp.failCapture(t, "No speech detected. Please try speaking again.")
	h.flush(t)

	s := h.state(t)
	require.Equal(t, domain.VoiceIdle, s.Voice)
	require.Equal(t, "No speech detected. Please try speaking again.", s.Error)
	require.Equal(t, domain.KindSpeech, s.ErrorKind)
	require.Empty(t, s.Messages)

	// The user can start again, which clears the banner.
	require.NoError(t, h.c.Start())
	s = h.state(t)
	require.Equal(t, domain.VoiceListening, s.Voice)
	require.Empty(t, s.Error)
	require.Empty(t, s.ErrorKind)
}

func TestCaptureErrorWhileDebouncingDropsTranscript(t *testing.T) {
	h := setup(t, newFakeSpeech())
	require.NoError(t, h.c.Start())

	h.sp.emit(t, "Hello", true)
	h.sp.failCapture(t, "Network error. Please check your connection.")
	h.flush(t)
	require.Equal(t, domain.VoiceIdle, h.state(t).Voice)
	require.Zero(t, h.clock.Pending())

	h.clock.Advance(timer.DefaultSettleWindow)
	h.flush(t)
	require.Zero(t, h.chat.count())
}

// ── start / stop ────────────────────────────────────────────────

func TestStartIsIdempotentWhileListening(t *testing.T) {
	h := setup(t, newFakeSpeech())
	require.NoError(t, h.c.Start())
	require.NoError(t, h.c.Start())
	require.Equal(t, 1, h.sp.captureCount())
}

func TestStartRefusedWhileProcessing(t *testing.T) {
	h := setup(t, newFakeSpeech())
	require.NoError(t, h.c.Submit("Hello"))

	require.ErrorIs(t, h.c.Start(), domain.ErrBusy)
	require.Equal(t, domain.VoiceProcessing, h.state(t).Voice)
	require.Zero(t, h.sp.captureCount())
}

func TestStartWhileSpeakingCancelsUtterance(t *testing.T) {
	h := setup(t, newFakeSpeech())
	h.toSpeaking(t)

	require.NoError(t, h.c.Start())
	h.flush(t)

	s := h.state(t)
	require.Equal(t, domain.VoiceListening, s.Voice)
	require.False(t, h.sp.isSpeaking())
	for _, m := range s.Messages {
		require.False(t, m.IsPlaying)
	}
}

// returnsWithin fails the test if fn blocks longer than d.
func returnsWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("call blocked for more than %s", d)
	}
}

func TestStartWaitsForPreviousCaptureWithoutBlocking(t *testing.T) {
	sp := newFakeSpeech()
	sp.holdRelease = true
	h := setup(t, sp)

	require.NoError(t, h.c.Start())
	h.c.StopVoiceChat()
	require.Equal(t, 1, sp.captureCount())

	// The old capture has not finished, so the next one is parked.
	var err error
	returnsWithin(t, 200*time.Millisecond, func() { err = h.c.Start() })
	require.NoError(t, err)
	s := h.state(t)
	require.Equal(t, domain.VoiceListening, s.Voice)
	require.Equal(t, 1, sp.captureCount())
	require.NoError(t, h.c.Start(), "start stays idempotent while parked")

	// Other commands are still answered while the start waits.
	returnsWithin(t, 200*time.Millisecond, h.c.StopSpeaking)
	returnsWithin(t, 200*time.Millisecond, h.c.StopVoiceChat)
	require.Equal(t, domain.VoiceIdle, h.state(t).Voice)
	require.Zero(t, h.clock.Pending(), "release timeout left scheduled")

	require.NoError(t, h.c.Start())
	sp.releaseHeld(t)
	require.Eventually(t, func() bool { return sp.captureCount() == 2 },
		2*time.Second, 5*time.Millisecond)
	h.flush(t)
	require.True(t, sp.listening())
	require.Equal(t, domain.VoiceListening, h.state(t).Voice)

	h.say(t, "Hello")
	require.Equal(t, "Hello", h.chat.next(t).msg)
}

func TestParkedStartGivesUpWaitingAfterTimeout(t *testing.T) {
	sp := newFakeSpeech()
	sp.holdRelease = true
	h := setup(t, sp)

	require.NoError(t, h.c.Start())
	h.c.StopVoiceChat()
	require.NoError(t, h.c.Start())
	require.Equal(t, 1, sp.captureCount())

	h.clock.Advance(captureReleaseTimeout)
	h.flush(t)
	require.Equal(t, 2, sp.captureCount())
	require.True(t, sp.listening())
	require.Equal(t, domain.VoiceListening, h.state(t).Voice)

	// The late release of the old capture changes nothing.
	sp.releaseHeld(t)
	h.flush(t)
	require.True(t, sp.listening())
	require.Equal(t, domain.VoiceListening, h.state(t).Voice)
}

func TestStartWithoutRecognition(t *testing.T) {
	sp := newFakeSpeech()
	sp.caps.SpeechRecognitionSupported = false
	h := setup(t, sp)

	require.ErrorIs(t, h.c.Start(), ErrRecognitionUnavailable)
	s := h.state(t)
	require.Equal(t, domain.VoiceIdle, s.Voice)
	require.Equal(t, MsgRecognitionUnsupported, s.Error)
	require.Equal(t, domain.KindConfiguration, s.ErrorKind)
}

func TestStopSpeaking(t *testing.T) {
	h := setup(t, newFakeSpeech())
	h.toSpeaking(t)

	h.c.StopSpeaking()
	h.flush(t)

	s := h.state(t)
	require.Equal(t, domain.VoiceIdle, s.Voice)
	require.False(t, s.Messages[1].IsPlaying)
	require.Zero(t, h.sp.captureCount())
}

func TestSynthesisErrorShowsBanner(t *testing.T) {
	h := setup(t, newFakeSpeech())
	h.toSpeaking(t)

	h.sp.finishSpeaking(t, "Speech synthesis error: device busy")
	s := h.waitFor(t, domain.VoiceIdle)
	require.Equal(t, "Speech synthesis error: device busy", s.Error)
	require.False(t, s.Messages[1].IsPlaying)
	require.Zero(t, h.sp.captureCount())
}

func TestSynthesisRefusedGoesIdle(t *testing.T) {
	sp := newFakeSpeech()
	sp.refuseSpeak = true
	h := setup(t, sp)

	require.NoError(t, h.c.Submit("Hello"))
	h.chat.next(t).reply("Hi there!")

	s := h.waitFor(t, domain.VoiceIdle)
	require.Equal(t, []string{"user:Hello", "assistant:Hi there!"}, contents(s.Messages))
	require.False(t, s.Messages[1].IsPlaying)

	h.flush(t)
	require.Equal(t, domain.VoiceIdle, h.state(t).Voice)
}

func TestTextOnlyMode(t *testing.T) {
	h := setup(t, nil)
	require.Equal(t, domain.Capabilities{}, h.c.Capabilities())

	require.ErrorIs(t, h.c.Start(), ErrRecognitionUnavailable)

	require.NoError(t, h.c.Submit("Hello"))
	h.chat.next(t).reply("Hi there!")
	s := h.waitFor(t, domain.VoiceIdle)
	require.Len(t, s.Messages, 2)
	require.False(t, s.Messages[1].IsPlaying)
}

func TestHardResetFromEveryState(t *testing.T) {
	tests := []struct {
		name  string
		reach func(t *testing.T, h *harness) *pendingCall
	}{
		{
			name:  "idle",
			reach: func(t *testing.T, h *harness) *pendingCall { return nil },
		},
		{
			name: "listening",
			reach: func(t *testing.T, h *harness) *pendingCall {
				require.NoError(t, h.c.Start())
				h.sp.emit(t, "Hel", false)
				return nil
			},
		},
		{
			name: "debouncing",
			reach: func(t *testing.T, h *harness) *pendingCall {
				require.NoError(t, h.c.Start())
				h.sp.emit(t, "Hello", true)
				h.flush(t)
				require.Equal(t, domain.VoiceDebouncing, h.state(t).Voice)
				return nil
			},
		},
		{
			name: "processing",
			reach: func(t *testing.T, h *harness) *pendingCall {
				require.NoError(t, h.c.Start())
				h.say(t, "Hello")
				require.Equal(t, domain.VoiceProcessing, h.state(t).Voice)
				return h.chat.next(t)
			},
		},
		{
			name: "speaking",
			reach: func(t *testing.T, h *harness) *pendingCall {
				h.toSpeaking(t)
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setup(t, newFakeSpeech())
			call := tt.reach(t, h)

			h.c.StopVoiceChat()
			h.flush(t)

			s := h.state(t)
			require.Equal(t, domain.VoiceIdle, s.Voice)
			require.False(t, s.Listening || s.Speaking || s.Processing)
			require.Empty(t, s.CurrentTranscript)
			require.Zero(t, h.clock.Pending(), "settle timer left running")
			require.False(t, h.sp.listening())
			require.False(t, h.sp.isSpeaking())
			for _, m := range s.Messages {
				require.False(t, m.IsPlaying)
			}

			if call != nil {
				require.True(t, call.canceled())
				n := len(s.Messages)

				// The late result is discarded.
				call.reply("too late")
				require.Eventually(t, func() bool {
					return h.c.Submit("again") == nil
				}, 2*time.Second, 5*time.Millisecond)
				require.NotContains(t, contents(h.state(t).Messages), "assistant:too late")
				require.Len(t, h.state(t).Messages, n+1)
			}
		})
	}
}

func TestStaleCaptureCallbacksIgnored(t *testing.T) {
	h := setup(t, newFakeSpeech())

	require.NoError(t, h.c.Start())
	old := h.sp.current(t)
	h.c.StopVoiceChat()
	require.NoError(t, h.c.Start())

	old.h.OnResult(domain.Hypothesis{Transcript: "from before", IsFinal: true})
	old.h.OnError("Microphone not accessible. Please check permissions.")
	old.h.OnEnd()
	h.flush(t)

	s := h.state(t)
	require.Equal(t, domain.VoiceListening, s.Voice)
	require.Empty(t, s.CurrentTranscript)
	require.Empty(t, s.Error)
	require.Zero(t, h.clock.Pending())
}

func TestStaleSpeechCallbacksIgnored(t *testing.T) {
	h := setup(t, newFakeSpeech())
	h.toSpeaking(t)
	first := h.sp.spoken()[0]

	h.c.StopSpeaking()
	require.NoError(t, h.c.Submit("And now?"))
	h.chat.next(t).reply("Now we practice.")
	h.waitFor(t, domain.VoiceSpeaking)

	first.h.OnError("Speech synthesis error: late")
	first.h.OnEnd()
	h.flush(t)

	s := h.state(t)
	require.Equal(t, domain.VoiceSpeaking, s.Voice)
	require.Empty(t, s.Error)
	require.True(t, s.Messages[3].IsPlaying)
}

// ── remote calls ────────────────────────────────────────────────

func TestAtMostOneOutstandingCall(t *testing.T) {
	h := setup(t, newFakeSpeech())

	require.NoError(t, h.c.Submit("one"))
	first := h.chat.next(t)

	require.ErrorIs(t, h.c.Submit("two"), domain.ErrBusy)
	require.ErrorIs(t, h.c.Retry(), domain.ErrBusy)

	// A cancelled call still counts until it resolves.
	h.c.StopVoiceChat()
	require.ErrorIs(t, h.c.Submit("three"), domain.ErrBusy)

	require.NoError(t, h.c.Start())
	h.say(t, "four")
	s := h.state(t)
	require.Equal(t, domain.VoiceIdle, s.Voice)
	require.Equal(t, MsgStillWaiting, s.Error)
	require.Equal(t, 1, h.chat.count())

	first.fail(context.Canceled)
	require.Eventually(t, func() bool {
		return h.c.Submit("five") == nil
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, "five", h.chat.next(t).msg)
	require.Equal(t, 2, h.chat.count())
}

func TestReplyFailureThenRetry(t *testing.T) {
	h := setup(t, newFakeSpeech())

	require.NoError(t, h.c.Submit("Hello"))
	h.chat.next(t).fail(domain.NewChatError(domain.KindNetwork, errors.New("connection refused")))

	s := h.waitFor(t, domain.VoiceIdle)
	require.Equal(t, []string{"user:Hello", "assistant:" + domain.MsgNetwork}, contents(s.Messages))
	require.True(t, s.Messages[1].Error)
	require.Equal(t, domain.MsgNetwork, s.Error)
	require.Equal(t, domain.KindNetwork, s.ErrorKind)
	require.Zero(t, h.sp.captureCount())
	require.Equal(t, 1, h.chat.count(), "no automatic retry")

	require.NoError(t, h.c.Retry())
	s = h.state(t)
	require.Equal(t, domain.VoiceProcessing, s.Voice)
	require.Empty(t, s.Error)
	require.Equal(t, []string{"user:Hello"}, contents(s.Messages))

	call := h.chat.next(t)
	require.Equal(t, "Hello", call.msg)
	call.reply("Hi there!")

	s = h.waitFor(t, domain.VoiceSpeaking)
	require.Equal(t, []string{"user:Hello", "assistant:Hi there!"}, contents(s.Messages))
}

func TestUnclassifiedFailureIsGeneric(t *testing.T) {
	h := setup(t, newFakeSpeech())

	require.NoError(t, h.c.Submit("Hello"))
	h.chat.next(t).fail(errors.New("boom"))

	s := h.waitFor(t, domain.VoiceIdle)
	require.Equal(t, domain.MsgGeneric, s.Messages[1].Content)
}

func TestRetryWithoutError(t *testing.T) {
	h := setup(t, newFakeSpeech())
	require.ErrorIs(t, h.c.Retry(), domain.ErrNothingToRetry)

	h.toSpeaking(t)
	h.c.StopSpeaking()
	require.ErrorIs(t, h.c.Retry(), domain.ErrNothingToRetry)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "   ", domain.MsgEmptyInput},
		{"too long", strings.Repeat("a", domain.MaxMessageLength+1), domain.MsgTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setup(t, newFakeSpeech())

			err := h.c.Submit(tt.input)
			var ce *domain.ChatError
			require.ErrorAs(t, err, &ce)
			require.Equal(t, domain.KindValidation, ce.Kind)

			s := h.state(t)
			require.Equal(t, tt.want, s.Error)
			require.Equal(t, domain.VoiceIdle, s.Voice)
			require.Empty(t, s.Messages)
			require.Zero(t, h.chat.count())
		})
	}
}

func TestSubmitWhileListening(t *testing.T) {
	h := setup(t, newFakeSpeech())
	require.NoError(t, h.c.Start())
	h.sp.emit(t, "Hello", true)
	h.flush(t)

	require.NoError(t, h.c.Submit("typed instead"))
	require.False(t, h.sp.listening())
	require.Zero(t, h.clock.Pending())

	h.clock.Advance(timer.DefaultSettleWindow)
	h.flush(t)
	require.Equal(t, "typed instead", h.chat.next(t).msg)
	require.Equal(t, 1, h.chat.count())
}

// ── observation ─────────────────────────────────────────────────

func TestClear(t *testing.T) {
	h := setup(t, newFakeSpeech())
	require.NoError(t, h.c.Submit("Hello"))
	h.chat.next(t).fail(domain.NewChatError(domain.KindCapacity, nil))
	h.waitFor(t, domain.VoiceIdle)

	h.c.Clear()
	s := h.state(t)
	require.Empty(t, s.Messages)
	require.Empty(t, s.Error)
	require.ErrorIs(t, h.c.Retry(), domain.ErrNothingToRetry)
}

func TestSubscribe(t *testing.T) {
	h := setup(t, newFakeSpeech())

	updates, unsubscribe := h.c.Subscribe()
	first := <-updates
	require.Equal(t, domain.VoiceIdle, first.Voice)

	require.NoError(t, h.c.Submit("Hello"))
	select {
	case s := <-updates:
		require.Equal(t, domain.VoiceProcessing, s.Voice)
	case <-time.After(2 * time.Second):
		t.Fatal("no update")
	}

	unsubscribe()
	unsubscribe()
	_, open := <-updates
	require.False(t, open)
}

func TestCapabilities(t *testing.T) {
	h := setup(t, newFakeSpeech())
	caps := h.c.Capabilities()
	require.True(t, caps.SpeechRecognitionSupported)
	require.Equal(t, 2, caps.VoiceCount)
	require.Equal(t, 1, caps.EnglishVoiceCount)
}

func TestClose(t *testing.T) {
	h := setup(t, newFakeSpeech())
	require.NoError(t, h.c.Start())

	h.c.Close()
	require.ErrorIs(t, h.c.Start(), ErrClosed)
	require.False(t, h.sp.listening())
	require.Equal(t, domain.VoiceIdle, h.c.State().Voice)
}
