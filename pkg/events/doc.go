/*
Package events provides an in-memory event broker for deployment notifications.

The broker broadcasts every event to every subscriber. Publishing never
blocks on slow subscribers: each subscriber has a buffered channel and
events are dropped for a subscriber whose buffer is full.

	Publisher → Event Channel (buffer: 100)
	     ↓
	Broadcast Loop
	     ↓
	Subscriber Channels (buffer: 50 each)

# Event Types

	graph.uploaded, graph.deleted
	node.added, node.removed
	transaction.created, transaction.dispatched,
	transaction.failed, transaction.completed

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		logger := log.WithComponent("events")
		for event := range sub {
			logger.Info().Str("type", string(event.Type)).Msg(event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:     events.EventTransactionCreated,
		Message:  "transaction created",
		Metadata: map[string]string{"transaction_id": tx.ID},
	})

Events get a random ID and the current time when published without them.
*/
package events
