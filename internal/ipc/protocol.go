// Package ipc carries control queries from the companion configuration
// process over a Unix socket, framed as length-prefixed CBOR messages.
package ipc

import (
	"fmt"

	"github.com/bnema/vdisplay/internal/display"
)

// Operation names accepted on the control socket.
const (
	OpStatus      = "status"
	OpResolutions = "resolutions"
)

// Request is one control query.
type Request struct {
	Op string `cbor:"op"`
}

// ClientInfo describes one connected viewer in a status response.
type ClientInfo struct {
	ID      int      `cbor:"id"`
	Mode    string   `cbor:"mode"`
	Display string   `cbor:"display,omitempty"`
	Devices []string `cbor:"devices,omitempty"`
}

// StatusResponse reports daemon state.
type StatusResponse struct {
	AnyVirtual bool         `cbor:"any_virtual"`
	Clients    []ClientInfo `cbor:"clients"`
}

// ResolutionsResponse carries the supported resolution presets.
type ResolutionsResponse struct {
	Resolutions []display.Resolution `cbor:"resolutions"`
}

// Response is the envelope for every reply.
type Response struct {
	Err         string               `cbor:"err,omitempty"`
	Status      *StatusResponse      `cbor:"status,omitempty"`
	Resolutions *ResolutionsResponse `cbor:"resolutions,omitempty"`
}

// Handler answers control queries; the daemon's manager implements it
// through an adapter.
type Handler interface {
	HandleStatus() (*StatusResponse, error)
	HandleResolutions() (*ResolutionsResponse, error)
}

// NewErrorResponse wraps an error message in a response envelope.
func NewErrorResponse(format string, args ...interface{}) *Response {
	return &Response{Err: fmt.Sprintf(format, args...)}
}
