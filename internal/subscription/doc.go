// Package subscription multiplexes logical subscriptions onto the broker.
//
// Many consumers may subscribe to the same topic filter. The Registry keeps
// one record per filter with a reference count: the first subscriber causes
// the SUBSCRIBE, the last one to leave causes the UNSUBSCRIBE, and everyone
// in between shares the single protocol subscription.
//
// # Streams
//
// Subscribe returns a Stream whose Items channel yields, in order:
//
//	Grant                      exactly once, when the SUBACK is in
//	Message | decode error     for every matching PUBLISH
//	(closed)                   on unsubscribe, Close or a failed SUBSCRIBE
//
// A subscriber joining a filter that is already live is granted at once.
// Messages that reach the client before the first SUBACK is processed (a
// retained message, typically) are held and delivered right after the Grant.
//
// # Reconnects
//
// Filters survive connection loss. On the next mqtt.EventConnected every
// filter is subscribed again, without a second Grant.
//
// The Registry does not read the transport's event stream itself; the owner
// forwards events through HandleEvent, after discarding those from a stale
// connection.
package subscription
