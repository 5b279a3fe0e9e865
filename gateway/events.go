package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Event is one increment of the streamed response. The client renders
// tool-result events as interactive artifacts; the gateway only guarantees
// the schema, not the rendering.
type Event struct {
	Type    string `json:"type"` // text, tool-call, tool-result, error, done
	Text    string `json:"text,omitempty"`
	Tool    string `json:"tool,omitempty"`
	CallID  string `json:"callId,omitempty"`
	Result  any    `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}

func textEvent(delta string) Event {
	return Event{Type: "text", Text: delta}
}

func toolCallEvent(tool, callID string) Event {
	return Event{Type: "tool-call", Tool: tool, CallID: callID}
}

func toolResultEvent(tool, callID string, result any) Event {
	return Event{Type: "tool-result", Tool: tool, CallID: callID, Result: result}
}

func errorEvent(message string) Event {
	return Event{Type: "error", Message: message}
}

func doneEvent() Event {
	return Event{Type: "done"}
}

// eventWriter serializes events onto a server-sent-event stream, flushing
// after every event so the client sees increments as they happen.
type eventWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func newEventWriter(w io.Writer, flusher http.Flusher) *eventWriter {
	return &eventWriter{w: w, flusher: flusher}
}

func (e *eventWriter) Emit(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		payload = []byte(`{"type":"error","message":"event serialization failed"}`)
	}
	fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	if e.flusher != nil {
		e.flusher.Flush()
	}
}
