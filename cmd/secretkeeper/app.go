package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hammamikhairi/secretkeeper/internal/client"
	"github.com/hammamikhairi/secretkeeper/internal/conversation"
	"github.com/hammamikhairi/secretkeeper/internal/display"
	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
	"github.com/hammamikhairi/secretkeeper/internal/voice"
)

const statusTimeout = 5 * time.Second

type cliApp struct {
	coord    *voice.Coordinator
	chat     *client.Client
	parser   domain.IntentParser
	notifier *conversation.CLINotifier
	log      *logger.Logger
	ui       *display.UI
}

func (a *cliApp) run(ctx context.Context) {
	updates, unsubscribe := a.coord.Subscribe()
	defer unsubscribe()
	go a.render(ctx, updates)

	a.checkServer(ctx)

	uiCh := a.ui.InputChan()
	for {
		var input string
		var ok bool

		select {
		case <-ctx.Done():
			return
		case input, ok = <-uiCh:
			if !ok {
				return
			}
		}

		intent, err := a.parser.Parse(ctx, input)
		if err != nil {
			a.log.Error("parsing input: %v", err)
			continue
		}

		a.log.Debug("intent: %s (payload=%q)", intent.Type, intent.Payload)
		if intent.Type == domain.IntentQuit {
			a.coord.StopVoiceChat()
			a.ui.PrintHint("Great practice today. See you next time!")
			return
		}
		a.handleIntent(ctx, intent)
	}
}

func (a *cliApp) handleIntent(ctx context.Context, intent *domain.Intent) {
	switch intent.Type {
	case domain.IntentSay:
		a.report(a.coord.Submit(intent.Payload))
	case domain.IntentTalk:
		a.report(a.coord.Start())
	case domain.IntentStop:
		a.coord.StopVoiceChat()
	case domain.IntentHush:
		a.coord.StopSpeaking()
	case domain.IntentRetry:
		a.report(a.coord.Retry())
	case domain.IntentClear:
		a.clear(ctx)
	case domain.IntentStatus:
		a.status(ctx)
	case domain.IntentHelp:
		a.showHelp()
	case domain.IntentUnknown:
		if intent.Payload != "" {
			a.ui.PrintHint(fmt.Sprintf("Unknown command %q. Type /help for commands.", intent.Payload))
		}
	}
}

// report explains command errors that don't already show as a banner.
func (a *cliApp) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrBusy):
		a.ui.PrintHint("Still waiting for the tutor. One moment…")
	case errors.Is(err, domain.ErrNothingToRetry):
		a.ui.PrintHint("Nothing to retry.")
	case errors.Is(err, voice.ErrClosed):
		a.log.Warn("command after close")
	default:
		// Validation and capture failures surface through the banner.
		a.log.Debug("command: %v", err)
	}
}

// render prints conversation changes above the prompt and forwards every
// snapshot to the status bar.
func (a *cliApp) render(ctx context.Context, updates <-chan domain.ConversationState) {
	printed := make(map[string]bool)
	prev := domain.ConversationState{Voice: domain.VoiceIdle}

	for {
		var s domain.ConversationState
		var ok bool
		select {
		case <-ctx.Done():
			return
		case s, ok = <-updates:
			if !ok {
				return
			}
		}

		a.ui.SetState(s)

		if len(s.Messages) == 0 {
			clear(printed)
		}
		for _, m := range s.Messages {
			if printed[m.ID] {
				continue
			}
			printed[m.ID] = true
			switch {
			case m.Role == domain.RoleUser:
				// Typed lines were already echoed by the prompt.
				if prev.Voice == domain.VoiceDebouncing || prev.Voice == domain.VoiceListening {
					a.ui.PrintVoice(m.Content)
				}
			case m.Error:
				// Shown through the banner below.
			default:
				a.ui.PrintTutor(m.Content)
			}
		}

		if s.Error != "" {
			_ = a.notifier.NotifyUrgent(ctx, s.Error)
			if s.Error != prev.Error {
				if hint := recoveryHint(s); hint != "" {
					a.ui.PrintHint(hint)
				}
			}
		} else if prev.Error != "" {
			a.notifier.Forget()
		}
		prev = s
	}
}

// recoveryHint suggests the command that gets past the current banner.
// Configuration problems are not fixed by sending again.
func recoveryHint(s domain.ConversationState) string {
	n := len(s.Messages)
	switch {
	case s.ErrorKind == domain.KindSpeech:
		return "Type 'talk' to try again, or type your sentence."
	case n > 0 && s.Messages[n-1].Error && s.ErrorKind.Retryable():
		return "Type /retry to send it again."
	}
	return ""
}

func (a *cliApp) clear(ctx context.Context) {
	a.coord.Clear()
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	if err := a.chat.Reset(ctx); err != nil {
		a.log.Warn("server reset failed: %v", err)
	}
	a.ui.PrintHint("Conversation cleared. Let's start fresh!")
}

// checkServer warns early when the tutor cannot answer.
func (a *cliApp) checkServer(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	st, err := a.chat.Status(ctx)
	if err != nil {
		a.ui.PrintUrgent("Can't reach the tutor server. Is it running?")
		a.log.Warn("status check: %v", err)
		return
	}
	if !st.Configured {
		a.ui.PrintUrgent(domain.MsgConfiguration)
		return
	}
	a.log.Info("server model: %s", st.Model)
}

func (a *cliApp) status(ctx context.Context) {
	s := a.coord.State()
	caps := a.coord.Capabilities()

	a.ui.PrintInfo(fmt.Sprintf("State: %s  (%d messages)", s.Voice, len(s.Messages)))
	a.ui.PrintInfo(fmt.Sprintf("Voice input: %s  Spoken replies: %s  Voices: %d (%d English)",
		onOff(caps.SpeechRecognitionSupported), onOff(caps.SpeechSynthesisSupported),
		caps.VoiceCount, caps.EnglishVoiceCount))

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	st, err := a.chat.Status(ctx)
	switch {
	case err != nil:
		a.ui.PrintUrgent("Server: unreachable")
	case st.Configured:
		a.ui.PrintInfo("Server: ready (" + st.Model + ")")
		if st.ConversationStarted != nil {
			a.ui.PrintInfo(fmt.Sprintf("Conversation: %d turns stored (%d yours) since %s",
				st.TotalMessages, st.UserMessages, st.ConversationStarted.Local().Format("15:04")))
		}
	default:
		a.ui.PrintUrgent("Server: no model configured")
	}
}

func (a *cliApp) showHelp() {
	lines := []string{
		"Type any sentence to practice, or use a command:",
		"  talk     speak your next turn (the mic stops after each turn)",
		"  /hush    stop the reply being spoken",
		"  /stop    stop listening, speaking and waiting",
		"  /retry   send the last message again after an error",
		"  /clear   start a new conversation",
		"  /status  show what is available",
		"  quit     exit",
		"Use /say to send \"talk\" or \"quit\" as practice text.",
	}
	a.ui.PrintHint(strings.Join(lines, "\n  "))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
