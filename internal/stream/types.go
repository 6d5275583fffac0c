package stream

// ChatEvent is one streamed fragment of the assistant's reply.
type ChatEvent struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversationId,omitempty"`
}
