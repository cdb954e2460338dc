package ai

import "context"

// Completer performs one blocking completion call.
type Completer interface {
	Chat(ctx context.Context, ep Endpoint, messages []Message) (string, error)
}

// Streamer produces a finite sequence of delta fragments for one call.
type Streamer interface {
	StreamChat(ctx context.Context, ep Endpoint, messages []Message) (<-chan string, <-chan error)
}
