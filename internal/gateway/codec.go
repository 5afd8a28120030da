package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
)

// ControlMessage is the decoded shape of a client → server text frame.
// Unknown JSON fields are ignored; a message that fails to parse decodes to
// the zero value with Valid set to false, which callers must treat as "no
// change" rather than an error.
type ControlMessage struct {
	Language     string
	EndRequested bool
	Valid        bool
}

// controlWire is the wire shape of ControlMessage, matching spec field
// names exactly.
type controlWire struct {
	Type     string `json:"type"`
	Language string `json:"language"`
}

// DecodeControl parses raw into a [ControlMessage]. Malformed JSON yields a
// ControlMessage with Valid=false rather than an error, per the protocol's
// "ignore malformed control frames" rule: the session must continue
// unaffected.
func DecodeControl(raw []byte) ControlMessage {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var wire controlWire
	if err := dec.Decode(&wire); err != nil {
		return ControlMessage{}
	}
	return ControlMessage{
		Language:     wire.Language,
		EndRequested: strings.EqualFold(wire.Type, "end"),
		Valid:        true,
	}
}

// transcriptBufPool recycles *bytes.Buffer across encode calls so hot-path
// transcript emission does not allocate a fresh buffer per message.
var transcriptBufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// EncodeTranscript renders {"type":"transcript","text":"..."} as a single
// line of UTF-8 JSON.
func EncodeTranscript(text string) []byte {
	return encodeOutbound(outboundWire{Type: "transcript", Text: text})
}

// EncodeError renders {"type":"error","message":"..."} as a single line of
// UTF-8 JSON.
func EncodeError(message string) []byte {
	return encodeOutbound(outboundWire{Type: "error", Message: message})
}

// outboundWire is the wire shape of an OutboundMessage.
type outboundWire struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

func encodeOutbound(w outboundWire) []byte {
	buf := transcriptBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer transcriptBufPool.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		// Encoding a struct of plain strings cannot fail; this path exists
		// only to satisfy the error-handling contract of json.Encoder.
		return nil
	}

	// Encoder.Encode appends a trailing newline; the wire format calls for
	// a single frame with no trailing delimiter, so trim it on a copy since
	// the pooled buffer is about to be reused.
	out := make([]byte, buf.Len()-1)
	copy(out, buf.Bytes()[:buf.Len()-1])
	return out
}
