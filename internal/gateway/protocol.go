package gateway

// WebSocket frame types. Clients send start and message frames; the server
// answers with started, then delta frames followed by error or done.
const (
	FrameStart   = "start"
	FrameMessage = "message"

	FrameStarted = "started"
	FrameDelta   = "delta"
	FrameError   = "error"
	FrameDone    = "done"
)

// Error codes carried in error frames and JSON error bodies.
const (
	CodeInvalidParams  = "invalid_params"
	CodeUnknownSession = "unknown_session"
	CodeUpstream       = "upstream_error"
	CodeTurnOrder      = "turn_order"
	CodeInternal       = "internal_error"
	CodeProtocol       = "protocol_error"
)

// Frame is the envelope for all WebSocket messages in both directions.
type Frame struct {
	Type string `json:"type"`
	// ID is an optional client correlation id echoed on every reply frame.
	ID       string `json:"id,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
	Message  string `json:"message,omitempty"`
	Content  string `json:"content,omitempty"`
	Seq      int64  `json:"seq,omitempty"`

	Error  *ErrorShape `json:"error,omitempty"`
	Result *TurnInfo   `json:"result,omitempty"`
}

// ErrorShape is the standard error format.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TurnInfo summarizes a finished round in a done frame.
type TurnInfo struct {
	Partial    bool   `json:"partial,omitempty"`
	Model      string `json:"model,omitempty"`
	Length     int    `json:"length"`
	DurationMs int64  `json:"durationMs"`
}

// NewStarted creates the reply to a start frame.
func NewStarted(id, threadID string) Frame {
	return Frame{Type: FrameStarted, ID: id, ThreadID: threadID}
}

// NewDelta creates a fragment frame.
func NewDelta(id, threadID, content string, seq int64) Frame {
	return Frame{Type: FrameDelta, ID: id, ThreadID: threadID, Content: content, Seq: seq}
}

// NewErrorFrame creates an error frame.
func NewErrorFrame(id, threadID, code, message string) Frame {
	return Frame{Type: FrameError, ID: id, ThreadID: threadID, Error: &ErrorShape{Code: code, Message: message}}
}

// NewDone creates the closing frame of a round.
func NewDone(id, threadID string, info TurnInfo) Frame {
	return Frame{Type: FrameDone, ID: id, ThreadID: threadID, Result: &info}
}
