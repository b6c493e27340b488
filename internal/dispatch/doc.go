// Package dispatch fans decoded events out to independent listeners.
//
// Listeners know nothing about the transport. A Dispatcher keeps a registry of
// subscriptions and, for each event, calls every listener registered at the
// time the event arrived. Listener failures (returned errors or panics) are
// logged and counted but never reach the caller or the other listeners.
//
// Subscriptions may be added or removed from any goroutine, including from
// inside a listener callback:
//
//	sub := d.SubscribeFunc(func(e model.Event) {
//	    if e.Severity.IsCritical() {
//	        alert(e)
//	    }
//	})
//	defer sub.Unsubscribe()
package dispatch
