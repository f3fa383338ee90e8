package session

import (
	"fmt"
	"sync"
)

// Conversation is the in-memory message sequence for one active session.
// Streamed fragments are folded in through ApplyFragment, which locates the
// target by message identity rather than position, so concurrent appends
// can't misdirect a fragment.
type Conversation struct {
	mu       sync.Mutex
	messages []Message
}

// NewConversation starts a conversation from existing history.
func NewConversation(history []Message) *Conversation {
	msgs := make([]Message, len(history))
	copy(msgs, history)
	return &Conversation{messages: msgs}
}

// Append adds a message and returns its id.
func (c *Conversation) Append(m Message) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	return m.ID
}

// ApplyFragment concatenates a streamed fragment onto the message with the
// given id. Returns an error if no such message exists (e.g. the stream was
// superseded and its sink removed).
func (c *Conversation) ApplyFragment(messageID, fragment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			c.messages[i].Text += fragment
			return nil
		}
	}
	return fmt.Errorf("message %s not in conversation", messageID)
}

// Messages returns a copy of the current message sequence.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}
