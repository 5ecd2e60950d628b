package logger

// Standard field names for consistent logging.
const (
	FieldService    = "service"
	FieldOperation  = "operation"
	FieldError      = "error"
	FieldUserID     = "user_id"
	FieldChatID     = "chat_id"
	FieldGroupName  = "group_name"
	FieldEventID    = "event_id"
	FieldQuestionID = "question_id"
)
