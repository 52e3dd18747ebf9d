package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
)

func TestRecoveryHint(t *testing.T) {
	failed := []domain.Message{
		{Role: domain.RoleUser, Content: "Hello"},
		{Role: domain.RoleAssistant, Content: "oops", Error: true},
	}

	tests := []struct {
		name  string
		state domain.ConversationState
		want  string
	}{
		{
			name:  "network failure invites retry",
			state: domain.ConversationState{Messages: failed, Error: domain.MsgNetwork, ErrorKind: domain.KindNetwork},
			want:  "Type /retry to send it again.",
		},
		{
			name:  "configuration failure does not",
			state: domain.ConversationState{Messages: failed, Error: domain.MsgConfiguration, ErrorKind: domain.KindConfiguration},
		},
		{
			name:  "capture error points at talk",
			state: domain.ConversationState{Error: "No speech detected.", ErrorKind: domain.KindSpeech},
			want:  "Type 'talk' to try again, or type your sentence.",
		},
		{
			name:  "validation banner has no hint",
			state: domain.ConversationState{Error: domain.MsgEmptyInput, ErrorKind: domain.KindValidation},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, recoveryHint(tt.state))
		})
	}
}
