package domain

import "time"

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat bubble. Only IsPlaying changes after creation.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
	IsPlaying bool // assistant reply currently being spoken
	Error     bool // assistant bubble carrying a failure text
}

// Turn is one entry of the server-side conversation history fed to the
// model as context.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// ConversationStats summarises a stored conversation.
type ConversationStats struct {
	TotalMessages     int
	UserMessages      int
	AssistantMessages int
	StartedAt         time.Time // zero when the conversation is empty
}

// VoiceState is the explicit state of the voice turn coordinator.
type VoiceState string

const (
	VoiceIdle       VoiceState = "idle"
	VoiceListening  VoiceState = "listening"
	VoiceDebouncing VoiceState = "debouncing" // final transcript held, settle timer running
	VoiceProcessing VoiceState = "processing"
	VoiceSpeaking   VoiceState = "speaking"
)

// ConversationState is a read-only snapshot of the coordinator. At most
// one of Listening, Speaking and Processing is true.
type ConversationState struct {
	Messages          []Message
	Voice             VoiceState
	Listening         bool
	Speaking          bool
	Processing        bool
	Error             string    // banner text, empty when there is none
	ErrorKind         ErrorKind // kind of the banner, empty with it
	CurrentTranscript string
}

// Capabilities is the speech support reported by the host.
type Capabilities struct {
	SpeechRecognitionSupported bool
	SpeechSynthesisSupported   bool
	VoiceCount                 int
	EnglishVoiceCount          int
}
