package bus

import "maps"

// Headers is the string key/value metadata carried by every envelope.
type Headers map[string]string

// Get returns the value stored under key, or "" when absent.
func (h Headers) Get(key string) string { return h[key] }

// Lookup returns the value stored under key and whether it was non-empty.
func (h Headers) Lookup(key string) (string, bool) {
	v, ok := h[key]
	return v, ok && v != ""
}

// Clone returns an independent copy. A nil receiver yields an empty, non-nil map.
func (h Headers) Clone() Headers {
	if h == nil {
		return Headers{}
	}

	return maps.Clone(h)
}

// Envelope is the unit handed to a transport: an opaque body plus headers.
// An envelope is owned by a single send; transports must not retain or mutate it after returning.
type Envelope struct {
	Headers Headers
	Body    []byte
}

// Clone copies the headers; the body is shared and must be treated as read-only.
func (e *Envelope) Clone() *Envelope {
	return &Envelope{Headers: e.Headers.Clone(), Body: e.Body}
}

// SubscribeRequest asks the owner of Topic to add SubscriberAddress to its subscriber list.
// It is sent only when the subscription storage is decentralized.
type SubscribeRequest struct {
	Topic             string `json:"topic"`
	SubscriberAddress string `json:"subscriberAddress"`
}

// UnsubscribeRequest asks the owner of Topic to remove SubscriberAddress from its subscriber list.
type UnsubscribeRequest struct {
	Topic             string `json:"topic"`
	SubscriberAddress string `json:"subscriberAddress"`
}
