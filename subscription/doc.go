/*
Package subscription holds the SubscriptionStorage implementations.

Pick one per endpoint at configuration time:

  - inmemory: process-local sets; centralized or decentralized as constructed.
  - redis:    centralized; every endpoint reads and writes the same Redis sets.
  - bolt:     decentralized; an owner endpoint persists the subscribers of the topics it owns.
*/
package subscription
