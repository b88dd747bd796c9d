package events

import "context"

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

// WatchEntries subscribes to all entry events and calls fn for each decoded
// event until ctx is done. Undecodable payloads are passed to onErr.
func WatchEntries(ctx context.Context, sub Subscriber, fn func(EntryChanged), onErr func(error)) error {
	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := DecodeEntryChanged(data)
			if err != nil {
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			fn(ev)
		}
	}
}
