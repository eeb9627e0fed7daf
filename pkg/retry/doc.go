// Package retry runs request/reply work again after transient failures.
//
// The channel stack itself never retries: a channel that timed out or lost
// its connection is Faulted and must be discarded. Do therefore builds a new
// channel from the factory for every attempt and waits an exponentially
// growing, jittered delay between attempts.
//
//	err := retry.Do(ctx, factory, addr, retry.DefaultPolicy(), func(ctx context.Context, ch *channel.Channel) error {
//		reply, err = ch.Request(ctx, msg.Derive(nil), 0)
//		return err
//	})
package retry
