package session

import "time"

// ChatMessage is one entry of the chat timeline. Messages are immutable once
// appended.
type ChatMessage struct {
	Seq              uint64
	SenderUserID     string
	SenderAttendeeID string
	Text             string
	// Timestamp is the local capture time, never the sender's clock.
	Timestamp time.Time
	Local     bool
}

// chatChannel is an append-only timeline ordered by local receipt.
type chatChannel struct {
	messages []ChatMessage
	next     uint64
}

func newChatChannel() *chatChannel {
	return &chatChannel{next: 1}
}

func (c *chatChannel) append(m ChatMessage) ChatMessage {
	m.Seq = c.next
	c.next++
	c.messages = append(c.messages, m)
	return m
}

func (c *chatChannel) list() []ChatMessage {
	out := make([]ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}
