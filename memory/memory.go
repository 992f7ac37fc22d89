package memory

import (
	"github.com/next-trace/scg-message-bus/adapters/inmemory"
	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	"github.com/next-trace/scg-message-bus/servicebus"
	subinmemory "github.com/next-trace/scg-message-bus/subscription/inmemory"
)

// Address is the input queue of the bus returned by New.
const Address = "local"

// New constructs a single-endpoint service bus on a private in-memory network and returns it
// as a contract.Bus along with a cleanup function that stops delivery and closes the bus.
// handler receives every message delivered to Address, including publishes once subscribed.
func New(handler cbus.MessageHandler, opts ...servicebus.BusOption) (cbus.Bus, func()) { //nolint:ireturn
	net := inmemory.NewNetwork(nil)

	sb, err := servicebus.New(servicebus.Endpoint{
		InputAddress:  Address,
		Transport:     net,
		Subscriptions: subinmemory.New(true),
	}, opts...)
	if err != nil {
		panic(err) // endpoint above is always complete
	}

	if err := net.Attach(Address, sb, handler); err != nil {
		panic(err)
	}

	cleanup := func() {
		net.Stop()
		_ = sb.Close()
	}

	return sb, cleanup
}
