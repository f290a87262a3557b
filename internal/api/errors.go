package api

// Client-facing messages
const (
	msgRoomNotFound      = "Room not found"
	msgInvalidSessionKey = "Invalid or missing session key"
	msgInvalidBody       = "Request body must be valid JSON"
	msgMetricsAccepted   = "Data received and sent to interviewer only"
	msgArchiveDisabled   = "Room archive is not enabled"
	msgRecordNotFound    = "No archived session for this room"
	msgInvalidLimit      = "limit must be a positive integer"
	msgInternal          = "Internal server error"
)
