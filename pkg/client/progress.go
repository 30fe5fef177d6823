package client

import (
	"io"
	"time"
)

// ProgressFunc receives the number of bytes sent so far and the total.
// It is called from the goroutine that streams the request body.
type ProgressFunc func(sent, total int64)

// progressReader reports bytes read through it, throttled to one call per
// interval except for the final one.
type progressReader struct {
	r        io.Reader
	total    int64
	sent     int64
	fn       ProgressFunc
	interval time.Duration
	lastEmit time.Time
	finished bool
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) io.Reader {
	if fn == nil {
		return r
	}
	return &progressReader{r: r, total: total, fn: fn, interval: 100 * time.Millisecond}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.sent += int64(n)
	p.emit(err == io.EOF)
	return n, err
}

func (p *progressReader) emit(eof bool) {
	if p.finished {
		return
	}
	done := eof || (p.total > 0 && p.sent >= p.total)
	if !done && time.Since(p.lastEmit) < p.interval {
		return
	}
	p.fn(p.sent, p.total)
	p.lastEmit = time.Now()
	p.finished = done
}
