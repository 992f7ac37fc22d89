package bus

import "context"

// MessageHandler handles a decoded inbound message. While it runs, ctx carries the
// headers of the message, which is what makes Reply work without an explicit destination.
// Implementations must be safe for concurrent use by multiple goroutines.
type MessageHandler func(ctx context.Context, msg any) error
