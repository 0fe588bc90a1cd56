package errs

// Handshake close codes. The numeric values are part of the client protocol.
const (
	CodeTokenRequired = 1008
	CodeMissingParams = 4000
	CodeAuthFailed    = 4001
)

const (
	ServerInternalError = 500

	CodeInvalidFrame        = 10001
	CodeUnknownFrameType    = 10002
	CodeInvalidTopic        = 10003
	CodeSubscriptionLimit   = 10004
	CodeUnknownEvent        = 10005
	CodeInvalidEventPayload = 10006
	CodeInvalidTarget       = 10007

	CodeDuplicateConnection = 20001
	CodeConnectionNotFound  = 20002
	CodeAccessDenied        = 20003
	CodeUnauthorizedService = 20004
)

var (
	ErrTokenRequired = NewCodeError(CodeTokenRequired, "token required")
	ErrMissingParams = NewCodeError(CodeMissingParams, "missing required parameters")
	ErrAuthFailed    = NewCodeError(CodeAuthFailed, "authentication failed")

	ErrInvalidFrame        = NewCodeError(CodeInvalidFrame, "invalid frame")
	ErrUnknownFrameType    = NewCodeError(CodeUnknownFrameType, "unknown frame type")
	ErrInvalidTopic        = NewCodeError(CodeInvalidTopic, "invalid topic")
	ErrSubscriptionLimit   = NewCodeError(CodeSubscriptionLimit, "subscription limit reached")
	ErrUnknownEvent        = NewCodeError(CodeUnknownEvent, "unknown event type")
	ErrInvalidEventPayload = NewCodeError(CodeInvalidEventPayload, "invalid event payload")
	ErrInvalidTarget       = NewCodeError(CodeInvalidTarget, "invalid target")

	ErrDuplicateConnection = NewCodeError(CodeDuplicateConnection, "duplicate connection")
	ErrConnectionNotFound  = NewCodeError(CodeConnectionNotFound, "connection not found")
	ErrAccessDenied        = NewCodeError(CodeAccessDenied, "access denied")
	ErrUnauthorizedService = NewCodeError(CodeUnauthorizedService, "unauthorized service")
)
