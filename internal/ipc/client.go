package ipc

import (
	"fmt"
	"net"
	"time"
)

// Client queries a running daemon over the control socket.
type Client struct {
	conn net.Conn
}

// Connect dials the control socket. An empty path uses the per-user
// default.
func Connect(socketPath string) (*Client, error) {
	if socketPath == "" {
		var err error
		socketPath, err = DefaultSocketPath()
		if err != nil {
			return nil, err
		}
	}

	conn, err := net.DialTimeout("unix", socketPath, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s (is the daemon running?): %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(req *Request) (*Response, error) {
	if err := writeFrame(c.conn, req); err != nil {
		return nil, err
	}

	var resp Response
	if err := readFrame(c.conn, &resp); err != nil {
		return nil, err
	}
	if resp.Err != "" {
		return nil, fmt.Errorf("daemon error: %s", resp.Err)
	}
	return &resp, nil
}

// Status queries the daemon's per-client state.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.roundTrip(&Request{Op: OpStatus})
	if err != nil {
		return nil, err
	}
	if resp.Status == nil {
		return nil, fmt.Errorf("malformed status response")
	}
	return resp.Status, nil
}

// Resolutions queries the supported resolution presets.
func (c *Client) Resolutions() (*ResolutionsResponse, error) {
	resp, err := c.roundTrip(&Request{Op: OpResolutions})
	if err != nil {
		return nil, err
	}
	if resp.Resolutions == nil {
		return nil, fmt.Errorf("malformed resolutions response")
	}
	return resp.Resolutions, nil
}
