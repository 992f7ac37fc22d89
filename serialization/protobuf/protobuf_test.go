package protobuf_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
	"github.com/next-trace/scg-message-bus/serialization/json"
	"github.com/next-trace/scg-message-bus/serialization/protobuf"
)

func TestSerializer_ProtoRoundTrip(t *testing.T) {
	s := protobuf.New(nil)
	h := cbus.Headers{}

	body, err := s.Serialize(t.Context(), wrapperspb.String("hello"), h)
	require.NoError(t, err)
	require.Equal(t, protobuf.ContentType, h[cbus.HeaderContentType])
	require.Equal(t, "google.protobuf.StringValue", h[cbus.HeaderMessageType])

	got, err := s.Deserialize(t.Context(), h, body)
	require.NoError(t, err)

	m, ok := got.(proto.Message)
	require.True(t, ok)
	require.True(t, proto.Equal(wrapperspb.String("hello"), m))
}

func TestSerializer_FallbackForControlMessages(t *testing.T) {
	s := protobuf.New(json.New(nil))
	h := cbus.Headers{}
	req := cbus.SubscribeRequest{Topic: "prices", SubscriberAddress: "b"}

	body, err := s.Serialize(t.Context(), req, h)
	require.NoError(t, err)
	require.Equal(t, json.ContentType, h[cbus.HeaderContentType])

	got, err := s.Deserialize(t.Context(), h, body)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestSerializer_Errors(t *testing.T) {
	s := protobuf.New(nil)

	_, err := s.Serialize(t.Context(), struct{}{}, cbus.Headers{})
	require.ErrorIs(t, err, berr.ErrSerializationFailed)

	_, err = s.Deserialize(t.Context(), cbus.Headers{}, nil)
	require.ErrorIs(t, err, berr.ErrSerializationFailed)

	h := cbus.Headers{cbus.HeaderContentType: protobuf.ContentType, cbus.HeaderMessageType: "no.such.Type"}
	_, err = s.Deserialize(t.Context(), h, nil)
	require.ErrorIs(t, err, berr.ErrSerializationFailed)

	h = cbus.Headers{cbus.HeaderContentType: protobuf.ContentType}
	_, err = s.Deserialize(t.Context(), h, nil)
	require.ErrorIs(t, err, berr.ErrMissingHeader)
}
