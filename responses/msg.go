package responses

const MessageTypeError = "error"

// Message is the JSON body of every non-payload response
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"` // application-level logic code
}
