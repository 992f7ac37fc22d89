/*
Package serialization holds the type registry shared by the bus serializers.

Sub-packages json and protobuf implement bus.Serializer. Both stamp the
MessageType and ContentType headers so a receiver can decode the body.
*/
package serialization
