package responses

import (
	"log"
	"net/http"

	"github.com/go-json-experiment/json"
)

// EncodeWriteJSON streams payload as the JSON body. Headers are frozen before
// encoding, so an encoding failure can only be logged.
func EncodeWriteJSON(w http.ResponseWriter, HTTPStatusCode int, payload any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store") // progress and errors change between calls
	w.WriteHeader(HTTPStatusCode)
	if err := json.MarshalWrite(w, payload); err != nil {
		log.Printf("[ERROR][WEB] failed to write JSON Stream to Response: %v", err)
	}
}

// WriteSimpleErrorJSON writes msg as a Message of type "error" without an app code
func WriteSimpleErrorJSON(w http.ResponseWriter, HTTPStatusCode int, msg string) {
	EncodeWriteJSON(w, HTTPStatusCode, Message{Type: MessageTypeError, Message: msg})
}
