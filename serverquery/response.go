package serverquery

import (
	"strings"

	"ts3query/protocol"
)

// Response is the outcome of one command: the terminator's status and
// every body line the server sent before it.
type Response struct {
	Code         int
	Message      string
	ExtraMessage string
	FailedPermID int    // -1 when absent
	Body         string // newline-joined, empty when the command has no output
}

func newResponse(st protocol.Status, body []string) *Response {
	return &Response{
		Code:         st.Code,
		Message:      st.Message,
		ExtraMessage: st.ExtraMessage,
		FailedPermID: st.FailedPermID,
		Body:         strings.Join(body, "\n"),
	}
}

// OK reports whether the server accepted the command.
func (r *Response) OK() bool { return r.Code == 0 }

// Err returns a *ProtocolError for a non-zero status and nil otherwise.
func (r *Response) Err(op string) error {
	if r.OK() {
		return nil
	}
	return &ProtocolError{
		Op:           op,
		Code:         r.Code,
		Message:      r.Message,
		ExtraMessage: r.ExtraMessage,
		FailedPermID: r.FailedPermID,
	}
}

// Record parses the first body line as a single record.  It returns nil
// for an empty body.
func (r *Response) Record() protocol.Record {
	first, _, _ := strings.Cut(r.Body, "\n")
	return protocol.ParseRecord(first)
}

// Records parses the body as a |-separated record list.
func (r *Response) Records() []protocol.Record {
	if r.Body == "" {
		return nil
	}
	var out []protocol.Record
	for _, line := range strings.Split(r.Body, "\n") {
		out = append(out, protocol.ParseRecordList(line)...)
	}
	return out
}
