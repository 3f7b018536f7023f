package models

// WebSocket event types pushed to connected observers. Each event carries a
// JSON payload; streaming deltas reference the single message they own.
const (
	WSThreadCreated    = "thread_created"
	WSThreadActivated  = "thread_activated"
	WSThreadUpdated    = "thread_updated"
	WSThreadDeleted    = "thread_deleted"
	WSMessageAppended  = "message_appended"
	WSMessageDelta     = "message_delta"
	WSMessageFinalized = "message_finalized"
	WSUsageUpdated     = "usage_updated"
	WSToolStarted      = "tool_started"
	WSToolFinished     = "tool_finished"
)
