package bus

import "context"

// Serializer turns a message into an envelope body and back.
// Serialize may add headers (HeaderContentType, HeaderMessageType) describing the body.
type Serializer interface {
	Serialize(ctx context.Context, msg any, headers Headers) ([]byte, error)
	Deserialize(ctx context.Context, headers Headers, body []byte) (any, error)
}
