package event

// Server-push events
const (
	// EventReceiveMessage - A message was posted to a joined conversation
	EventReceiveMessage = "ReceiveMessage"

	// EventUserTyping - A participant started or stopped typing
	EventUserTyping = "UserTyping"

	// EventMessagesRead - A participant read the conversation
	EventMessagesRead = "MessagesRead"

	// EventStaffJoined - A staff member took over the conversation
	EventStaffJoined = "StaffJoined"

	// EventSupportRequestCreated - The customer's support request was queued
	EventSupportRequestCreated = "SupportRequestCreated"

	// EventNewSupportRequest - Staff-side notification of a queued request
	EventNewSupportRequest = "NewSupportRequest"

	// EventSupportRequestAccepted - Staff-side notification that a request was taken
	EventSupportRequestAccepted = "SupportRequestAccepted"

	// EventSupportResolved - Staff handed the conversation back to the AI
	EventSupportResolved = "SupportResolved"

	// EventUserJoined - A participant joined the conversation group
	EventUserJoined = "UserJoined"

	// EventUserLeft - A participant left the conversation group
	EventUserLeft = "UserLeft"

	// EventError - Server-side error notification
	EventError = "Error"
)

// KnownEvents lists every server-push event the client subscribes to.
var KnownEvents = []string{
	EventReceiveMessage,
	EventUserTyping,
	EventMessagesRead,
	EventStaffJoined,
	EventSupportRequestCreated,
	EventNewSupportRequest,
	EventSupportRequestAccepted,
	EventSupportResolved,
	EventUserJoined,
	EventUserLeft,
	EventError,
}

// Hub methods invoked by the client
const (
	MethodJoinConversation     = "JoinConversation"
	MethodLeaveConversation    = "LeaveConversation"
	MethodSendMessage          = "SendMessage"
	MethodNotifyTyping         = "NotifyTyping"
	MethodMarkAsRead           = "MarkAsRead"
	MethodRequestSupport       = "RequestSupport"
	MethodAcceptSupportRequest = "AcceptSupportRequest"
	MethodResolveSupport       = "ResolveSupport"
)
