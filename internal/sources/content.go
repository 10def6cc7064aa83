package sources

import (
	"bytes"
	"context"
	"io"
)

// Content is the payload of an Item. Close releases nothing for the handles
// in this package; it exists so callers can treat content as any other
// io.ReadCloser.
type Content interface {
	io.Reader
	io.Closer
}

// FetchFunc downloads the full payload of a remote file.
type FetchFunc func(ctx context.Context) ([]byte, error)

// LazyContent defers a download until the first Read, then serves every
// subsequent Read from an in-memory buffer. The fetch runs at most once per
// successful download. A LazyContent is not safe for concurrent use.
type LazyContent struct {
	ctx   context.Context
	fetch FetchFunc
	buf   *bytes.Reader
	data  []byte
}

// NewLazyContent returns a handle that calls fetch with ctx on first read.
// ctx is normally the context of the iteration that produced the item.
func NewLazyContent(ctx context.Context, fetch FetchFunc) *LazyContent {
	return &LazyContent{ctx: ctx, fetch: fetch}
}

func (c *LazyContent) load() error {
	if c.buf != nil {
		return nil
	}
	data, err := c.fetch(c.ctx)
	if err != nil {
		return err
	}
	c.data = data
	c.buf = bytes.NewReader(data)
	return nil
}

// Read implements io.Reader with a forward read cursor.
func (c *LazyContent) Read(p []byte) (int, error) {
	if err := c.load(); err != nil {
		return 0, err
	}
	return c.buf.Read(p)
}

// Bytes returns the whole payload without moving the read cursor.
func (c *LazyContent) Bytes() ([]byte, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	return c.data, nil
}

// Fetched reports whether the payload has been downloaded.
func (c *LazyContent) Fetched() bool {
	return c.buf != nil
}

func (c *LazyContent) Close() error {
	return nil
}

// BufferedContent is an already materialized payload.
type BufferedContent struct {
	*bytes.Reader
	data []byte
}

func NewBufferedContent(data []byte) *BufferedContent {
	return &BufferedContent{Reader: bytes.NewReader(data), data: data}
}

func (c *BufferedContent) Bytes() ([]byte, error) {
	return c.data, nil
}

func (c *BufferedContent) Close() error {
	return nil
}

// ReadAll returns the full payload of c. Handles that already hold their
// payload return it directly; anything else is drained.
func ReadAll(c Content) ([]byte, error) {
	if b, ok := c.(interface{ Bytes() ([]byte, error) }); ok {
		return b.Bytes()
	}
	return io.ReadAll(c)
}
