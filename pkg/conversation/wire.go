package conversation

// StreamRequest is the body of POST /api/chat/stream.
type StreamRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// CreateRequest is the body of POST /api/conversations.
type CreateRequest struct {
	Title string `json:"title"`
}

// ListResponse is returned by GET /api/conversations, most recently
// updated first.
type ListResponse struct {
	Count         int            `json:"count"`
	Conversations []Conversation `json:"conversations"`
}

// MessagesResponse is returned by GET /api/conversations/:id/messages,
// oldest first.
type MessagesResponse struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

// ErrorResponse is the JSON body of every non-streaming error.
type ErrorResponse struct {
	Error string `json:"error"`
}
