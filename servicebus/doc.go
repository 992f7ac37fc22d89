/*
Package servicebus provides the bus facade: point-to-point sends, replies and topic
publish/subscribe over any bus.Transport.

It resolves destinations through a bus.Router and a bus.SubscriptionStorage, stamps the
headers that make replies routable (MessageId, ReturnAddress, CorrelationId) and hands one
envelope per destination to the transport. Replies find their destination through the
headers of the message being handled, which Handle scopes into the context.
*/
package servicebus
