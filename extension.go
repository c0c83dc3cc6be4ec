package gofaye

// MessageExtender defines the interface that extensions are expected to
// implement. Outgoing sees every message after the session's MessageExt is
// attached; Incoming sees every inbound message before it is routed.
type MessageExtender interface {
	Outgoing(*Message)
	Incoming(*Message)
	Registered(extensionName string, session *Session)
	Unregistered()
}
