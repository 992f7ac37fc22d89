package json_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
	"github.com/next-trace/scg-message-bus/serialization"
	"github.com/next-trace/scg-message-bus/serialization/json"
)

type OrderCreated struct {
	ID    string `json:"id"`
	Total int    `json:"total"`
}

func TestSerializer_StampsHeadersAndDecodes(t *testing.T) {
	s := json.New(nil)
	h := cbus.Headers{}

	body, err := s.Serialize(t.Context(), &OrderCreated{ID: "o-1", Total: 3}, h)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"o-1","total":3}`, string(body))
	require.Equal(t, json.ContentType, h[cbus.HeaderContentType])
	require.Equal(t, "json_test.OrderCreated", h[cbus.HeaderMessageType])

	got, err := s.Deserialize(t.Context(), h, body)
	require.NoError(t, err)
	require.Equal(t, OrderCreated{ID: "o-1", Total: 3}, got)
}

func TestSerializer_ControlMessagesKnownUpFront(t *testing.T) {
	s := json.New(nil)
	h := cbus.Headers{cbus.HeaderMessageType: "bus.SubscribeRequest"}

	got, err := s.Deserialize(t.Context(), h, []byte(`{"topic":"prices","subscriberAddress":"b"}`))
	require.NoError(t, err)
	require.Equal(t, cbus.SubscribeRequest{Topic: "prices", SubscriberAddress: "b"}, got)
}

func TestSerializer_Errors(t *testing.T) {
	s := json.New(nil)

	_, err := s.Serialize(t.Context(), make(chan int), cbus.Headers{})
	require.ErrorIs(t, err, berr.ErrSerializationFailed)

	_, err = s.Serialize(t.Context(), nil, cbus.Headers{})
	require.ErrorIs(t, err, berr.ErrSerializationFailed)

	_, err = s.Deserialize(t.Context(), cbus.Headers{}, []byte(`{}`))
	require.ErrorIs(t, err, berr.ErrMissingHeader)

	_, err = s.Deserialize(t.Context(), cbus.Headers{cbus.HeaderMessageType: "nope"}, []byte(`{}`))
	require.ErrorIs(t, err, berr.ErrSerializationFailed)

	h := cbus.Headers{cbus.HeaderMessageType: "bus.SubscribeRequest"}
	_, err = s.Deserialize(t.Context(), h, []byte(`{not json`))
	require.ErrorIs(t, err, berr.ErrSerializationFailed)
}

type impostor struct{}

func (impostor) MessageName() string { return "json_test.OrderCreated" }

func TestSerializer_NameConflict(t *testing.T) {
	s := json.New(nil)

	_, err := s.Serialize(t.Context(), OrderCreated{ID: "o-1"}, cbus.Headers{})
	require.NoError(t, err)

	h := cbus.Headers{}
	_, err = s.Serialize(t.Context(), impostor{}, h)
	require.ErrorIs(t, err, berr.ErrSerializationFailed)
	require.ErrorIs(t, err, serialization.ErrNameConflict)
	require.Empty(t, h)
}
