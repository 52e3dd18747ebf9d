// Package voice implements the turn coordinator of a spoken conversation:
// listen, settle the transcript, ask the tutor, speak the reply, and go
// back to idle until the user starts the next turn.
package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
	"github.com/hammamikhairi/secretkeeper/internal/timer"
)

// DefaultSpeakRate is slightly slower than normal speech so learners can
// follow along.
const DefaultSpeakRate = 0.9

const (
	defaultMailboxSize    = 256
	capabilityTimeout     = 5 * time.Second
	captureReleaseTimeout = 2 * time.Second
)

// Errors returned by coordinator commands.
var (
	ErrClosed                 = errors.New("voice: coordinator closed")
	ErrRecognitionUnavailable = errors.New("voice: speech recognition unavailable")
	ErrCaptureUnavailable     = errors.New("voice: could not start capture")
)

// Banner texts.
const (
	MsgRecognitionUnsupported = "Speech recognition is not supported on this device."
	MsgCaptureUnavailable     = "Could not start listening. Please try again."
	MsgStillWaiting           = "Still finishing the previous request. Please try again in a moment."
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the clock driving the settle timer and message
// timestamps.
func WithClock(c timer.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithSettleWindow sets how long a final transcript must stay unchanged
// before it is sent.
func WithSettleWindow(d time.Duration) Option {
	return func(co *Coordinator) {
		if d > 0 {
			co.window = d
		}
	}
}

// WithSpeakOptions sets the options used for every spoken reply.
func WithSpeakOptions(o domain.SpeakOptions) Option {
	return func(co *Coordinator) { co.speakOpts = o }
}

// WithIDs overrides the message id generator.
func WithIDs(next func() string) Option {
	return func(co *Coordinator) { co.newID = next }
}

// WithMailboxSize sets the event loop's mailbox buffer.
func WithMailboxSize(n int) Option {
	return func(co *Coordinator) {
		if n > 0 {
			co.mailbox = n
		}
	}
}

// Coordinator drives voice turns. A single goroutine owns the turn state;
// commands, speech callbacks, settle timer fires and remote completions
// are all delivered to its mailbox and handled one at a time.
type Coordinator struct {
	speech    domain.SpeechService // nil in text-only mode
	chat      domain.ChatSender
	log       *logger.Logger
	clock     timer.Clock
	window    time.Duration
	speakOpts domain.SpeakOptions
	newID     func() string
	mailbox   int

	settle *timer.Settle
	caps   domain.Capabilities

	inbox     chan input
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	st state // owned by the loop goroutine

	mu      sync.RWMutex
	snap    domain.ConversationState
	subs    map[int]chan domain.ConversationState
	nextSub int
}

// New creates a coordinator and starts its event loop. speech may be nil,
// in which case only typed turns work and replies are not spoken.
func New(speech domain.SpeechService, chat domain.ChatSender, log *logger.Logger, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		speech:    speech,
		chat:      chat,
		log:       log.With("voice"),
		clock:     timer.Real{},
		window:    timer.DefaultSettleWindow,
		speakOpts: domain.SpeakOptions{Rate: DefaultSpeakRate, Pitch: 1},
		newID:     uuid.NewString,
		mailbox:   defaultMailboxSize,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		subs:      make(map[int]chan domain.ConversationState),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.inbox = make(chan input, c.mailbox)
	c.settle = timer.NewSettle(func(gen uint64, value string) {
		c.post(settled{gen: gen, value: value})
	}, c.log, timer.WithClock(c.clock), timer.WithWindow(c.window))

	if speech != nil {
		detectCtx, cancelDetect := context.WithTimeout(ctx, capabilityTimeout)
		c.caps = speech.DetectCapabilities(detectCtx)
		cancelDetect()
	}
	c.log.Info("capabilities: recognition=%t synthesis=%t voices=%d english=%d",
		c.caps.SpeechRecognitionSupported, c.caps.SpeechSynthesisSupported,
		c.caps.VoiceCount, c.caps.EnglishVoiceCount)

	c.st.voice = domain.VoiceIdle
	c.snap = c.st.snapshot()

	go c.loop()
	return c
}

// Capabilities returns the speech support detected at construction.
func (c *Coordinator) Capabilities() domain.Capabilities { return c.caps }

// Start begins listening for the user's next turn. It is refused with
// domain.ErrBusy while a reply is being fetched, and cancels a reply that
// is being spoken.
func (c *Coordinator) Start() error { return c.send(cmdStart, "") }

// StopVoiceChat returns to idle from any state, cancelling capture,
// synthesis, the settle timer and any in-flight request.
func (c *Coordinator) StopVoiceChat() { _ = c.send(cmdStopVoice, "") }

// StopSpeaking cancels the reply being spoken.
func (c *Coordinator) StopSpeaking() { _ = c.send(cmdStopSpeaking, "") }

// Submit sends typed text as the user's turn.
func (c *Coordinator) Submit(text string) error { return c.send(cmdSubmit, text) }

// Retry resubmits the last user text when the latest message is an
// error. It returns domain.ErrNothingToRetry otherwise.
func (c *Coordinator) Retry() error { return c.send(cmdRetry, "") }

// Clear stops everything and empties the conversation.
func (c *Coordinator) Clear() { _ = c.send(cmdClear, "") }

// State returns the latest snapshot.
func (c *Coordinator) State() domain.ConversationState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Subscribe returns a channel receiving snapshots after every change.
// Slow readers only see the latest one. The returned func unsubscribes.
func (c *Coordinator) Subscribe() (<-chan domain.ConversationState, func()) {
	ch := make(chan domain.ConversationState, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snap
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			close(ch)
			c.mu.Unlock()
		})
	}
}

// Close resets the coordinator and stops its loop. Commands issued after
// Close return ErrClosed.
func (c *Coordinator) Close() {
	c.closeOnce.Do(c.cancel)
	<-c.done
}

// Done is closed once the loop has exited.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// send delivers a command and waits for its result.
func (c *Coordinator) send(kind commandKind, text string) error {
	cmd := command{kind: kind, text: text, reply: make(chan error, 1)}
	select {
	case c.inbox <- cmd:
	case <-c.ctx.Done():
		return ErrClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// post delivers an event from a callback goroutine.
func (c *Coordinator) post(in input) {
	select {
	case c.inbox <- in:
	case <-c.ctx.Done():
	}
}

func (c *Coordinator) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.hardReset()
			c.publish()
			c.log.Debug("loop stopped")
			return
		case in := <-c.inbox:
			prev := c.st.voice
			err := c.handle(in)
			if prev != c.st.voice {
				c.log.Debug("%s -> %s", prev, c.st.voice)
			}
			c.publish()
			if cmd, ok := in.(command); ok {
				cmd.reply <- err
			}
		}
	}
}

// publish stores a fresh snapshot and hands it to every subscriber,
// replacing any snapshot they have not read yet.
func (c *Coordinator) publish() {
	snap := c.st.snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
