package bus

// Well-known header keys stamped by the outgoing pipeline.
const (
	// HeaderMessageID uniquely identifies an envelope. Never overwritten by caller-supplied headers.
	HeaderMessageID = "MessageId"

	// HeaderReturnAddress is the input address replies should be sent to.
	HeaderReturnAddress = "ReturnAddress"

	// HeaderSenderAddress is the input address of the endpoint that produced the envelope.
	HeaderSenderAddress = "SenderAddress"

	// HeaderCorrelationID links every message in a conversation to the message that started it.
	HeaderCorrelationID = "CorrelationId"

	// HeaderInReplyTo carries the MessageId of the request a reply answers.
	HeaderInReplyTo = "InReplyTo"

	// HeaderIntent is IntentPointToPoint or IntentPublish.
	HeaderIntent = "Intent"

	// HeaderTopic is set on published envelopes.
	HeaderTopic = "Topic"

	// HeaderSentTime is the RFC 3339 (nano) time the envelope left the pipeline.
	HeaderSentTime = "SentTime"

	// HeaderMessageType names the body's type so the receiver can decode it.
	HeaderMessageType = "MessageType"

	// HeaderContentType is the MIME type of the body.
	HeaderContentType = "ContentType"
)

// Intent header values.
const (
	IntentPointToPoint = "p2p"
	IntentPublish      = "pub"
)
