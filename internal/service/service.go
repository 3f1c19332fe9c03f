// Package service implements the chat core: room lifecycle, message
// fan-out, and the invitation/join-request workflow. Services own the
// ordering of persisted writes and live pushes; transports stay thin.
package service

// Client-facing event names, matching the socket protocol the web
// client speaks.
const (
	EventReceiveMessage    = "receive-message"
	EventUserJoined        = "user-joined"
	EventUserLeft          = "user-left"
	EventNotification      = "notification"
	EventMembershipUpdated = "membership-updated"
	EventTyping            = "typing"
	EventError             = "error"
)
