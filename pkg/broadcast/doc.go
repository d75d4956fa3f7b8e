// Package broadcast fans messages out to in-process subscribers.
//
// MemoryBroadcaster never blocks the sender: a subscriber whose buffer is
// full misses the message and Broadcast reports how many did. The repository
// package publishes flag set changes through it.
//
//	b := broadcast.NewMemoryBroadcaster[Event](8)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx)
//	defer sub.Close()
//	for ev := range sub.Receive() {
//		handle(ev)
//	}
package broadcast
