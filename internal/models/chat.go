package models

import "time"

// ChatMessage is an ephemeral broadcast message. The server retains only a
// bounded recent-history buffer for reconnect backfill; nothing is written
// to durable storage.
type ChatMessage struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Role       Role      `json:"role"`
	Timestamp  time.Time `json:"timestamp"`
}
