// Package client is a native Go client for the gather data server. It
// issues the text commands, reads the length-prefixed binary frames back,
// and decodes raw sample rows into numeric columns — decoding is a client
// responsibility; the server only forwards raw bytes and type codes.
package client

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/c360/gatherd/errors"
	"github.com/c360/gatherd/gather"
	"github.com/c360/gatherd/wire"
)

// Client talks to one gather server over TCP. It is not safe for
// concurrent use; the protocol is strictly request/response on one socket.
type Client struct {
	conn net.Conn
}

// Dial connects to a gather server at addr ("host:port").
func Dial(addr string) (*Client, error) {
	return DialTimeout(addr, 0)
}

// DialTimeout connects with a dial timeout; zero means no timeout.
func DialTimeout(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.WrapTransient(err, "client", "Dial", "connect")
	}
	return NewClient(conn), nil
}

// NewClient wraps an existing connection, which the client takes ownership
// of.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn}
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// command sends one protocol command line.
func (c *Client) command(cmd string) error {
	return wire.SendAll(c.conn, []byte(cmd+"\n"))
}

// expect reads one frame and checks its tag. A reserved 'E' frame is
// surfaced as a server error with its code.
func (c *Client) expect(tag byte) ([]byte, error) {
	got, body, err := wire.ReadFrame(c.conn)
	if err != nil {
		return nil, err
	}
	if got == wire.TagError {
		code := uint32(0)
		if len(body) >= 4 {
			code = binary.BigEndian.Uint32(body[:4])
		}
		return nil, errors.WrapTransient(fmt.Errorf("server error %d", code),
			"client", "expect", "frame exchange")
	}
	if got != tag {
		return nil, errors.WrapInvalid(fmt.Errorf("unexpected frame tag %q (want %q)", got, tag),
			"client", "expect", "frame exchange")
	}
	return body, nil
}

// SetServoMode instructs the server to answer from the servo buffer set.
func (c *Client) SetServoMode() error {
	if err := c.command("servo"); err != nil {
		return err
	}
	_, err := c.expect('K')
	return err
}

// SetPhaseMode instructs the server to answer from the phase buffer set.
func (c *Client) SetPhaseMode() error {
	if err := c.command("phase"); err != nil {
		return err
	}
	_, err := c.expect('K')
	return err
}

func parseTypes(body []byte) ([]gather.TypeCode, error) {
	if len(body) < 1 {
		return nil, errors.WrapInvalid(fmt.Errorf("type frame body is empty"),
			"client", "parseTypes", "frame validation")
	}
	n := int(body[0])
	if len(body) < 1+2*n {
		return nil, errors.WrapInvalid(
			fmt.Errorf("type frame declares %d items but carries %d bytes", n, len(body)-1),
			"client", "parseTypes", "frame validation")
	}

	types := make([]gather.TypeCode, n)
	for i := range types {
		types[i] = gather.TypeCode(binary.BigEndian.Uint16(body[1+2*i:]))
	}
	return types, nil
}

func parseData(body []byte) (uint32, []byte, error) {
	if len(body) < 4 {
		return 0, nil, errors.WrapInvalid(fmt.Errorf("data frame body is %d bytes", len(body)),
			"client", "parseData", "frame validation")
	}
	return binary.BigEndian.Uint32(body[:4]), body[4:], nil
}

// QueryTypes asks for the per-channel type codes of the current mode.
func (c *Client) QueryTypes() ([]gather.TypeCode, error) {
	if err := c.command("types"); err != nil {
		return nil, err
	}
	body, err := c.expect(wire.TagType)
	if err != nil {
		return nil, err
	}
	return parseTypes(body)
}

// QueryRawData asks for the current mode's sample count and raw row bytes.
func (c *Client) QueryRawData() (uint32, []byte, error) {
	if err := c.command("data"); err != nil {
		return 0, nil, err
	}
	body, err := c.expect(wire.TagData)
	if err != nil {
		return 0, nil, err
	}
	return parseData(body)
}

// QueryAll fetches types and raw data with one round trip. Requesting them
// separately pays a Nagle delay per small frame; the server's "all" command
// sends both back to back, with the data frame omitted when there are no
// items.
func (c *Client) QueryAll() ([]gather.TypeCode, uint32, []byte, error) {
	if err := c.command("all"); err != nil {
		return nil, 0, nil, err
	}

	body, err := c.expect(wire.TagType)
	if err != nil {
		return nil, 0, nil, err
	}
	types, err := parseTypes(body)
	if err != nil {
		return nil, 0, nil, err
	}
	if len(types) == 0 {
		return types, 0, nil, nil
	}

	body, err = c.expect(wire.TagData)
	if err != nil {
		return nil, 0, nil, err
	}
	samples, raw, err := parseData(body)
	if err != nil {
		return nil, 0, nil, err
	}
	return types, samples, raw, nil
}

// Columns fetches and decodes the current capture as per-channel columns.
func (c *Client) Columns() ([][]float64, error) {
	types, _, raw, err := c.QueryAll()
	if err != nil {
		return nil, err
	}
	return Columns(types, raw)
}

// Rows fetches and decodes the current capture as sample rows.
func (c *Client) Rows() ([][]float64, error) {
	types, _, raw, err := c.QueryAll()
	if err != nil {
		return nil, err
	}
	return Rows(types, raw)
}
