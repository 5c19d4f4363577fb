// Package server defines the JSON frame types exchanged over a connection.
// Every frame is a single newline-free JSON object with a "type"
// discriminator; requests carry all possible fields in one envelope.
package server

import "time"

// request is the inbound frame envelope. Which fields are meaningful depends
// on Type; unknown types are logged and ignored.
type request struct {
	Type           string  `json:"type"`
	DisplayName    string  `json:"displayName,omitempty"`
	Email          string  `json:"email,omitempty"`
	Password       string  `json:"password,omitempty"`
	Token          string  `json:"token,omitempty"`
	ChatID         int64   `json:"chatId,omitempty"`
	Content        string  `json:"content,omitempty"`
	GroupName      string  `json:"groupName,omitempty"`
	ParticipantIDs []int64 `json:"participantIds,omitempty"`
}

// Request type discriminators.
const (
	typeRegister    = "register"
	typeLogin       = "login"
	typeListChats   = "list_chats"
	typeLoadChat    = "load_chat"
	typeSendMessage = "send_message"
	typeCreateGroup = "create_group"
)

type welcomeFrame struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type registerSuccessFrame struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
}

type loginSuccessFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type chatInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type chatListFrame struct {
	Type  string     `json:"type"`
	Chats []chatInfo `json:"chats"`
}

type messageInfo struct {
	SenderID int64  `json:"senderId"`
	Content  string `json:"content"`
	SentAt   string `json:"sentAt"`
}

type chatHistoryFrame struct {
	Type     string        `json:"type"`
	ChatID   int64         `json:"chatId"`
	Messages []messageInfo `json:"messages"`
}

type groupCreatedFrame struct {
	Type         string  `json:"type"`
	ChatID       int64   `json:"chatId"`
	GroupName    string  `json:"groupName"`
	Participants []int64 `json:"participants"`
}

// formatSentAt renders a message timestamp for the wire.
func formatSentAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
