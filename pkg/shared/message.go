package shared

// MessageType tags a websocket frame sent to the browser terminal.
type MessageType int

// Values are part of the wire format; do not renumber.
const (
	MessageTypeOutput  MessageType = 0 // printed value
	MessageTypeOK      MessageType = 1 // statement succeeded without output
	MessageTypeError   MessageType = 2 // statement failed
	MessageTypeSession MessageType = 3 // session id announcement
	MessageTypePrompt  MessageType = 4 // prompt text and current base
)

var messageTypeNames = map[MessageType]string{
	MessageTypeOutput:  "output",
	MessageTypeOK:      "ok",
	MessageTypeError:   "error",
	MessageTypeSession: "session",
	MessageTypePrompt:  "prompt",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Message is the JSON frame exchanged over the terminal websocket.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`

	// For MessageTypeError
	ErrorKind string `json:"errorKind,omitempty"`
	Category  string `json:"category,omitempty"`

	// For MessageTypeSession
	SessionID string `json:"sessionId,omitempty"`

	// For MessageTypePrompt
	PromptSymbol string `json:"promptSymbol,omitempty"`
	Base         string `json:"base,omitempty"`

	// Sequence number of the statement this frame answers.
	Seq int `json:"seq,omitempty"`
}

// InputMessage is a line submitted by the client.
type InputMessage struct {
	Content string `json:"content"`
}
