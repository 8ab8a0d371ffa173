package events

import (
	"fmt"
	"io"
)

// WriteSSE writes e as one server-sent-events record:
//
//	event: <type>
//	data: <json>
func WriteSSE(w io.Writer, e Event) error {
	data, err := e.Payload()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
	return err
}
