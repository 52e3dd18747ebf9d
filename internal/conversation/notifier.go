package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

// Compile-time interface check.
var _ domain.Notifier = (*CLINotifier)(nil)

// ANSI escape codes for terminal formatting.
const (
	reset = "\033[0m"
	bold  = "\033[1m"
	red   = "\033[31m"
	cyan  = "\033[36m"
)

// PrintFunc is a function used to print formatted output.
// Matches the signature of both fmt.Printf and display.UI.Printf.
type PrintFunc func(format string, a ...interface{})

// CLINotifier writes notices with ANSI formatting. Repeating the notice
// that was just shown is suppressed, so a banner that stays up across
// several state snapshots prints once.
type CLINotifier struct {
	log     *logger.Logger
	printFn PrintFunc

	mu   sync.Mutex
	last string
}

// NewCLINotifier creates a terminal notifier.
// If printFn is nil, fmt.Printf is used.
func NewCLINotifier(log *logger.Logger, printFn PrintFunc) *CLINotifier {
	if printFn == nil {
		printFn = func(format string, a ...interface{}) {
			fmt.Printf(format+"\n", a...)
		}
	}
	return &CLINotifier{log: log.With("notify"), printFn: printFn}
}

// Notify prints a normal notice.
func (n *CLINotifier) Notify(_ context.Context, message string) error {
	if !n.fresh(message) {
		return nil
	}
	n.log.Debug("notify: %s", message)
	n.printFn("%s%s%s%s", cyan, bold, message, reset)
	return nil
}

// NotifyUrgent prints an error notice in bold red.
func (n *CLINotifier) NotifyUrgent(_ context.Context, message string) error {
	if !n.fresh(message) {
		return nil
	}
	n.log.Debug("notify-urgent: %s", message)
	n.printFn("%s%s%s%s", red, bold, message, reset)
	return nil
}

// Forget clears the last notice so the same text can be shown again.
func (n *CLINotifier) Forget() {
	n.mu.Lock()
	n.last = ""
	n.mu.Unlock()
}

func (n *CLINotifier) fresh(message string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if message == "" || message == n.last {
		return false
	}
	n.last = message
	return true
}
