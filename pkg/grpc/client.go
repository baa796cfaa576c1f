package grpc

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

// Client holds one persistent connection to an RPC server. Calls are
// serialized on the connection; a Client is safe for concurrent use.
type Client struct {
	conn net.Conn

	mu  sync.Mutex
	enc *json.Encoder
	dec *json.Decoder

	seq atomic.Int64
}

// Dial connects to addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
	}, nil
}

// Call invokes method with params and, when result is non-nil, decodes
// the response data into it.
func (c *Client) Call(method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	req := request{
		Method: method,
		ID:     strconv.FormatInt(c.seq.Add(1), 10),
		Params: raw,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("sending %s: %w", method, err)
	}
	var resp response
	if err := c.dec.Decode(&resp); err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("rpc %s: %s", method, resp.Error)
	}
	if result != nil {
		data, err := json.Marshal(resp.Data)
		if err != nil {
			return fmt.Errorf("re-encoding %s response: %w", method, err)
		}
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("decoding %s response: %w", method, err)
		}
	}
	return nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
