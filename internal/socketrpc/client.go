package socketrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/braidlog/braid/internal/model"
)

// Client implements model.ReadAPI over a Unix domain socket using JSON-RPC 2.0.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
}

var _ model.ReadAPI = (*Client)(nil)

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	return &Client{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs a JSON-RPC call and unmarshals the result into dest.
func (c *Client) call(method string, params interface{}, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	paramsData, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("socketrpc: marshal params: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	c.conn.SetDeadline(time.Now().Add(30 * time.Second))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("socketrpc: send: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("socketrpc: read: %w", err)
		}
		return fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}

	if resp.Error != nil {
		return resp.Error
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) Manifest() (model.ManifestInfo, error) {
	var result model.ManifestInfo
	err := c.call("ManifestInfo", map[string]interface{}{}, &result)
	return result, err
}

func (c *Client) Total() (int64, error) {
	var result int64
	err := c.call("FilteredTotal", map[string]interface{}{}, &result)
	return result, err
}

func (c *Client) ReadRangeByIdx(startIdx, endIdx int64) ([]model.LogEntry, model.View, error) {
	var result RangeResult
	err := c.call("ReadRangeByIdx", map[string]interface{}{
		"StartIdx": startIdx,
		"EndIdx":   endIdx,
	}, &result)
	return result.Entries, result.View, err
}

func (c *Client) SetFilter(f *model.Filter) error {
	return c.call("SetFilter", map[string]interface{}{"Filter": f}, nil)
}

func (c *Client) ClearFilter() error {
	return c.call("ClearFilter", map[string]interface{}{}, nil)
}

func (c *Client) SetManifestDir(dir string) error {
	return c.call("SetManifestDir", map[string]interface{}{"Dir": dir}, nil)
}

// ManifestDir reports the server's bound directory; the wire carries it
// inside ManifestInfo.
func (c *Client) ManifestDir() string {
	info, err := c.Manifest()
	if err != nil {
		return ""
	}
	return info.Dir
}
