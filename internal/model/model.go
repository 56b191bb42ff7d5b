// Package model holds the persistent entities of the fan-out core.
// JSON tags match the public API field names.
package model

import "time"

// Presence status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Chat kinds.
const (
	ChatPersonal = "personal"
	ChatChannel  = "channel"
)

// Membership roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Message kinds.
const (
	MessageText     = "text"
	MessageImage    = "image"
	MessageVideo    = "video"
	MessageAudio    = "audio"
	MessageDocument = "document"
	MessageLocation = "location"
)

// ValidMessageKind reports whether k is one of the accepted message kinds.
func ValidMessageKind(k string) bool {
	switch k {
	case MessageText, MessageImage, MessageVideo, MessageAudio, MessageDocument, MessageLocation:
		return true
	}
	return false
}

// User is created by the auth path; the fan-out core otherwise only reads it.
type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Email          string     `json:"email,omitempty"`
	Password       string     `json:"-"`
	Status         string     `json:"status"`
	LastSeen       *time.Time `json:"lastSeen,omitempty"`
	ProfilePicture string     `json:"profilePicture,omitempty"`
}

// Chat is either a personal chat (exactly two members) or a channel.
type Chat struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Members   []Member  `json:"members,omitempty"`
}

// Member is one user's membership in a chat. Blocked means this user has
// blocked the counterparty in the chat; it says nothing about other rows.
type Member struct {
	UserID  string `json:"userId"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role"`
	Blocked bool   `json:"blocked"`
}

// Message is append-only. Ordering within a chat is (CreatedAt, ID).
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Story expires 24 hours after creation and is purged by the cleanup cron.
type Story struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	MediaURL  string    `json:"mediaUrl"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StoryTTL is the lifetime of a story.
const StoryTTL = 24 * time.Hour
