/*
Package events is a non-blocking pub/sub broker for the audit events the
control loops and the bootstrapper raise (instance dispatched, restarted,
migrated, terminated; bootstrap phase transitions). The leader-lock
acquired/lost event types are defined, but no package in this module
publishes them. Publish never blocks on slow subscribers — a full
subscriber buffer simply skips that event.

	b := events.NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)
	go func() {
		for ev := range sub {
			log.Info().Str("type", string(ev.Type)).Msg(ev.Message)
		}
	}()

pkg/ophealth's /events endpoint is the primary consumer, surfacing a
short recent-events feed over HTTP.
*/
package events
