package browser

import (
	"fmt"

	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/wire"
)

// Client drives one browser session's request/reply protocol. Each
// method sends one request and waits for its matching reply.
type Client struct {
	Session *mux.Session
}

func (c *Client) ListDir(path string) ([]wire.DirEntry, error) {
	if err := c.Session.Send(wire.ListDir{Path: path}); err != nil {
		return nil, err
	}
	p, err := c.Session.Recv()
	if err != nil {
		return nil, err
	}
	switch v := p.(type) {
	case wire.DirListing:
		return v.Entries, nil
	case wire.ErrorMessage:
		return nil, fmt.Errorf("%s", v.Message)
	default:
		return nil, fmt.Errorf("expected DirListing, got %T", p)
	}
}

func (c *Client) ReadFile(path string) ([]byte, error) {
	if err := c.Session.Send(wire.ReadFile{Path: path}); err != nil {
		return nil, err
	}
	p, err := c.Session.Recv()
	if err != nil {
		return nil, err
	}
	switch v := p.(type) {
	case wire.FileContent:
		return v.Bytes, nil
	case wire.ErrorMessage:
		return nil, fmt.Errorf("%s", v.Message)
	default:
		return nil, fmt.Errorf("expected FileContent, got %T", p)
	}
}

func (c *Client) WriteFile(path string, data []byte) error {
	if err := c.Session.Send(wire.WriteFile{Path: path, Bytes: data}); err != nil {
		return err
	}
	return c.expectOk()
}

func (c *Client) DeleteFile(path string, recursive bool) error {
	if err := c.Session.Send(wire.DeleteFile{Path: path, Recursive: recursive}); err != nil {
		return err
	}
	return c.expectOk()
}

func (c *Client) Metadata(path string) (wire.FileMeta, error) {
	if err := c.Session.Send(wire.MetadataRequest{Path: path}); err != nil {
		return wire.FileMeta{}, err
	}
	p, err := c.Session.Recv()
	if err != nil {
		return wire.FileMeta{}, err
	}
	switch v := p.(type) {
	case wire.MetadataReply:
		return v.Meta, nil
	case wire.ErrorMessage:
		return wire.FileMeta{}, fmt.Errorf("%s", v.Message)
	default:
		return wire.FileMeta{}, fmt.Errorf("expected MetadataReply, got %T", p)
	}
}

func (c *Client) Exists(path string) (bool, error) {
	if err := c.Session.Send(wire.FileExists{Path: path}); err != nil {
		return false, err
	}
	p, err := c.Session.Recv()
	if err != nil {
		return false, err
	}
	v, ok := p.(wire.ExistsReply)
	if !ok {
		return false, fmt.Errorf("expected ExistsReply, got %T", p)
	}
	return v.Exists, nil
}

func (c *Client) expectOk() error {
	p, err := c.Session.Recv()
	if err != nil {
		return err
	}
	switch v := p.(type) {
	case wire.Ok:
		return nil
	case wire.ErrorMessage:
		return fmt.Errorf("%s", v.Message)
	default:
		return fmt.Errorf("expected Ok, got %T", p)
	}
}
