package voice

import (
	"context"
	"strings"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
)

func (c *Coordinator) handle(in input) error {
	switch ev := in.(type) {
	case command:
		return c.handleCommand(ev)
	case captureResult:
		c.onCaptureResult(ev)
	case captureError:
		c.onCaptureError(ev)
	case captureEnd:
		c.onCaptureEnd(ev)
	case captureReleased:
		c.onCaptureReleased(ev)
	case settled:
		c.onSettled(ev)
	case replyDone:
		c.onReply(ev)
	case speechEnd:
		c.onSpeechDone(ev.gen, "")
	case speechError:
		c.onSpeechDone(ev.gen, ev.msg)
	}
	return nil
}

func (c *Coordinator) handleCommand(cmd command) error {
	c.log.Debug("command %s in %s", cmd.kind, c.st.voice)
	switch cmd.kind {
	case cmdStart:
		return c.start()
	case cmdStopVoice:
		c.hardReset()
	case cmdStopSpeaking:
		if c.st.voice == domain.VoiceSpeaking {
			c.cancelSpeech()
			c.st.voice = domain.VoiceIdle
		}
	case cmdSubmit:
		return c.submit(cmd.text)
	case cmdRetry:
		return c.retry()
	case cmdClear:
		c.hardReset()
		c.st.messages = nil
		c.st.banner = ""
		c.st.lastUser = ""
	case cmdFlush:
	}
	return nil
}

// ── commands ────────────────────────────────────────────────────

func (c *Coordinator) start() error {
	switch c.st.voice {
	case domain.VoiceProcessing:
		return domain.ErrBusy
	case domain.VoiceListening, domain.VoiceDebouncing:
		return nil
	case domain.VoiceSpeaking:
		c.cancelSpeech()
		c.st.voice = domain.VoiceIdle
	}

	if c.speech == nil || !c.caps.SpeechRecognitionSupported {
		c.st.showBanner(domain.KindConfiguration, MsgRecognitionUnsupported)
		return ErrRecognitionUnavailable
	}

	if t := c.st.capture; t != nil && !finished(t) {
		// The previous capture still holds the microphone; open the next
		// one when it lets go.
		c.waitForRelease(t)
		c.st.transcript = ""
		c.st.banner = ""
		c.st.voice = domain.VoiceListening
		return nil
	}
	c.st.capture = nil
	return c.openCapture()
}

func (c *Coordinator) openCapture() error {
	c.st.captureGen++
	gen := c.st.captureGen
	task, ok := c.speech.StartListening(domain.ListenHandlers{
		OnResult: func(h domain.Hypothesis) { c.post(captureResult{gen: gen, hyp: h}) },
		OnError:  func(msg string) { c.post(captureError{gen: gen, msg: msg}) },
		OnEnd:    func() { c.post(captureEnd{gen: gen}) },
	})
	if !ok {
		c.st.showBanner(domain.KindSpeech, MsgCaptureUnavailable)
		c.st.voice = domain.VoiceIdle
		return ErrCaptureUnavailable
	}

	c.st.capture = task
	c.st.capturing = true
	c.st.transcript = ""
	c.st.banner = ""
	c.st.voice = domain.VoiceListening
	return nil
}

func (c *Coordinator) submit(raw string) error {
	if c.st.voice == domain.VoiceProcessing || c.st.outstanding != 0 {
		return domain.ErrBusy
	}
	text, verr := domain.ValidateMessage(raw)
	if verr != nil {
		c.st.showBanner(verr.Kind, verr.Message)
		return verr
	}
	c.leaveForTurn()
	return c.beginTurn(text, true)
}

func (c *Coordinator) retry() error {
	if c.st.voice == domain.VoiceProcessing || c.st.outstanding != 0 {
		return domain.ErrBusy
	}
	if !c.st.lastIsError() || c.st.lastUser == "" {
		return domain.ErrNothingToRetry
	}
	c.leaveForTurn()
	c.st.messages = c.st.messages[:len(c.st.messages)-1]
	return c.beginTurn(c.st.lastUser, false)
}

// leaveForTurn quiets capture and synthesis before a typed or retried
// turn is sent.
func (c *Coordinator) leaveForTurn() {
	switch c.st.voice {
	case domain.VoiceListening, domain.VoiceDebouncing:
		c.settle.Stop()
		c.stopCapture()
		c.st.transcript = ""
	case domain.VoiceSpeaking:
		c.cancelSpeech()
	}
	c.st.voice = domain.VoiceIdle
}

// hardReset returns to Idle from any state. A request in flight is
// cancelled and its result will be discarded, but it still counts as
// outstanding until it resolves.
func (c *Coordinator) hardReset() {
	c.settle.Stop()
	c.stopCapture()
	c.cancelSpeech()
	if c.st.cancelReq != nil {
		c.st.cancelReq()
		c.st.cancelReq = nil
	}
	c.st.awaiting = 0
	c.st.transcript = ""
	c.st.voice = domain.VoiceIdle
}

// ── capture ─────────────────────────────────────────────────────

func (c *Coordinator) currentCapture(gen uint64) bool {
	return gen == c.st.captureGen && c.st.capturing
}

func (c *Coordinator) onCaptureResult(ev captureResult) {
	if !c.currentCapture(ev.gen) {
		return
	}
	if c.st.voice != domain.VoiceListening && c.st.voice != domain.VoiceDebouncing {
		return
	}

	c.st.transcript = ev.hyp.Transcript
	if !ev.hyp.IsFinal {
		return
	}
	// The latest final replaces whatever was held; the window restarts.
	c.st.settleGen = c.settle.Reset(strings.TrimSpace(ev.hyp.Transcript))
	c.st.voice = domain.VoiceDebouncing
}

func (c *Coordinator) onCaptureError(ev captureError) {
	if !c.currentCapture(ev.gen) {
		return
	}
	c.log.Warn("capture error: %s", ev.msg)
	c.settle.Stop()
	c.stopCapture()
	c.st.transcript = ""
	c.st.showBanner(domain.KindSpeech, ev.msg)
	c.st.voice = domain.VoiceIdle
}

func (c *Coordinator) onCaptureEnd(ev captureEnd) {
	if !c.currentCapture(ev.gen) {
		return
	}
	c.st.capturing = false
	// While debouncing the held transcript still goes out when the
	// window closes.
	if c.st.voice == domain.VoiceListening {
		c.st.transcript = ""
		c.st.voice = domain.VoiceIdle
	}
}

func (c *Coordinator) stopCapture() {
	c.clearPending()
	if !c.st.capturing {
		return
	}
	c.st.capturing = false
	c.speech.StopListening()
}

// waitForRelease parks a start until t finishes or the release timeout
// passes. Either way a captureReleased event resumes it on the loop.
func (c *Coordinator) waitForRelease(t domain.Task) {
	c.st.startGen++
	gen := c.st.startGen
	p := &pendingStart{gen: gen, abort: make(chan struct{})}
	p.timeout = c.clock.AfterFunc(captureReleaseTimeout, func() {
		c.post(captureReleased{gen: gen, timedOut: true})
	})
	c.st.pending = p

	go func() {
		select {
		case <-t.Done():
			c.post(captureReleased{gen: gen})
		case <-p.abort:
		case <-c.ctx.Done():
		}
	}()
}

func (c *Coordinator) onCaptureReleased(ev captureReleased) {
	if c.st.pending == nil || c.st.pending.gen != ev.gen {
		return
	}
	c.clearPending()
	if ev.timedOut {
		c.log.Warn("previous capture did not release within %s", captureReleaseTimeout)
	}
	c.st.capture = nil
	if err := c.openCapture(); err != nil {
		c.log.Warn("deferred start: %v", err)
	}
}

func (c *Coordinator) clearPending() {
	p := c.st.pending
	if p == nil {
		return
	}
	c.st.pending = nil
	p.timeout.Stop()
	close(p.abort)
}

func finished(t domain.Task) bool {
	select {
	case <-t.Done():
		return true
	default:
		return false
	}
}

func (c *Coordinator) onSettled(ev settled) {
	if ev.gen != c.st.settleGen || c.st.voice != domain.VoiceDebouncing {
		return
	}
	c.stopCapture()
	c.st.transcript = ""
	c.st.voice = domain.VoiceIdle

	if ev.value == "" {
		return
	}
	_ = c.beginTurn(ev.value, true)
}

// ── remote call ─────────────────────────────────────────────────

// beginTurn sends text to the tutor. appendUser is false on retry, where
// the user message is already in the conversation.
func (c *Coordinator) beginTurn(text string, appendUser bool) error {
	if c.st.outstanding != 0 {
		c.st.showBanner(domain.KindCapacity, MsgStillWaiting)
		return domain.ErrBusy
	}

	if appendUser {
		c.appendMessage(domain.Message{Role: domain.RoleUser, Content: text})
	}
	c.st.lastUser = text
	c.st.banner = ""
	c.st.voice = domain.VoiceProcessing

	c.st.reqGen++
	gen := c.st.reqGen
	ctx, cancel := context.WithCancel(c.ctx)
	c.st.cancelReq = cancel
	c.st.awaiting = gen
	c.st.outstanding = gen

	c.log.Info("sending turn %d (%d chars)", gen, len(text))
	go func() {
		defer cancel()
		reply, err := c.chat.Send(ctx, text)
		c.post(replyDone{gen: gen, reply: reply, err: err})
	}()
	return nil
}

func (c *Coordinator) onReply(ev replyDone) {
	if ev.gen == c.st.outstanding {
		c.st.outstanding = 0
	}
	if ev.gen != c.st.awaiting {
		c.log.Debug("discarding result of turn %d", ev.gen)
		return
	}
	c.st.awaiting = 0
	if c.st.cancelReq != nil {
		c.st.cancelReq()
		c.st.cancelReq = nil
	}

	if ev.err != nil {
		ce := domain.AsChatError(ev.err)
		c.log.Warn("turn %d failed: %v", ev.gen, ev.err)
		c.appendMessage(domain.Message{Role: domain.RoleAssistant, Content: ce.Message, Error: true})
		c.st.showBanner(ce.Kind, ce.Message)
		c.st.voice = domain.VoiceIdle
		return
	}

	id := c.appendMessage(domain.Message{Role: domain.RoleAssistant, Content: ev.reply, IsPlaying: true})
	c.speak(id, ev.reply)
}

// ── synthesis ───────────────────────────────────────────────────

func (c *Coordinator) speak(id, text string) {
	c.st.voice = domain.VoiceIdle
	if c.speech == nil {
		c.st.markNotPlaying(id)
		return
	}

	c.st.utterGen++
	gen := c.st.utterGen
	task, ok := c.speech.Speak(text, c.speakOpts, domain.SpeakHandlers{
		OnEnd:   func() { c.post(speechEnd{gen: gen}) },
		OnError: func(msg string) { c.post(speechError{gen: gen, msg: msg}) },
	})
	if !ok {
		c.st.markNotPlaying(id)
		return
	}
	c.st.utterance = task
	c.st.speakingID = id
	c.st.voice = domain.VoiceSpeaking
}

// onSpeechDone handles the end of an utterance. Listening is never
// resumed here; the user starts the next turn.
func (c *Coordinator) onSpeechDone(gen uint64, errMsg string) {
	if gen != c.st.utterGen || c.st.voice != domain.VoiceSpeaking {
		return
	}
	if errMsg != "" {
		c.log.Warn("synthesis error: %s", errMsg)
		c.st.showBanner(domain.KindSpeech, errMsg)
	}
	c.st.markNotPlaying(c.st.speakingID)
	c.st.utterance = nil
	c.st.speakingID = ""
	c.st.voice = domain.VoiceIdle
}

// cancelSpeech stops the current utterance and marks every message as
// not playing. Its pending callbacks become stale.
func (c *Coordinator) cancelSpeech() {
	if c.st.utterance != nil {
		c.speech.StopSpeaking()
		c.st.utterance = nil
	}
	c.st.utterGen++
	c.st.speakingID = ""
	c.st.markNotPlaying("")
}

func (c *Coordinator) appendMessage(m domain.Message) string {
	m.ID = c.newID()
	m.Timestamp = c.clock.Now()
	c.st.messages = append(c.st.messages, m)
	return m.ID
}
