// Package connection implements the connection lifecycle state machine.
//
// One Machine owns the lifecycle of the single broker connection that all
// consumers share. It is constructed with the transport and handed to
// whoever needs it; there is no package-level instance.
//
// # States
//
//	             Connect                 EventConnected
//	DISCONNECTED ───────► CONNECTING ─────────────────► CONNECTED
//	     ▲                    │                          │    ▲
//	     │  EventConnectFailed│          EventConnectionLost  │ EventConnected
//	     └────────────────────┘          (reconnect on)  ▼    │
//	                                                 RECONNECTING
//
// End moves any state to DISCONNECTED and retires the machine.
//
// # Status
//
// Consumers see only CONNECTED or DISCONNECTED. A status is broadcast when
// it changes, and every new StatusStream first receives the current value.
//
// # Repeated Connect
//
// Connect with the configuration already in use (while connecting,
// connected or reconnecting) does nothing. Any other Connect tears the
// current connection down first.
//
// # Stale Events
//
// Every Connect tags its connection with a new mqtt.ConnID. HandleEvent
// reports events from older connections as stale so the caller can drop
// them before they reach anything else.
package connection
