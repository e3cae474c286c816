package render

import "github.com/valyala/bytebufferpool"

// BufferPool hands out pooled byte buffers for callers that need to render
// into memory before handing the result on (internal/server's live route
// renders a page into one before pushing it over Datastar SSE). The render
// Context itself writes
// straight through to its sink and never buffers internally, per
// spec.md §5 ("no intermediate buffer except what a single template-
// element render inherently needs").
type BufferPool struct{}

// Get returns a buffer from the pool.
func (BufferPool) Get() *bytebufferpool.ByteBuffer {
	return bytebufferpool.Get()
}

// Put returns buf to the pool for reuse.
func (BufferPool) Put(buf *bytebufferpool.ByteBuffer) {
	bytebufferpool.Put(buf)
}
