package conversation

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

func TestCLINotifierSuppressesRepeats(t *testing.T) {
	var lines []string
	n := NewCLINotifier(logger.New(logger.LevelOff, nil), func(format string, a ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, a...))
	})
	ctx := context.Background()

	_ = n.NotifyUrgent(ctx, "Microphone not accessible.")
	_ = n.NotifyUrgent(ctx, "Microphone not accessible.")
	_ = n.Notify(ctx, "")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], red) || !strings.Contains(lines[0], "Microphone not accessible.") {
		t.Errorf("urgent line not formatted: %q", lines[0])
	}

	n.Forget()
	_ = n.Notify(ctx, "Microphone not accessible.")
	if len(lines) != 2 || !strings.Contains(lines[1], cyan) {
		t.Errorf("expected a second, normal notice: %q", lines)
	}
}
