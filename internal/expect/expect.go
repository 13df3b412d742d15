// Package expect races a set of regular expressions against a byte stream.
//
// An Expecter owns one reader goroutine that copies bytes from the stream into
// a channel; Expect consumes those bytes into a private buffer and scans it
// after every chunk. Among all patterns, the match that starts earliest in the
// stream wins, with ties going to the pattern listed first. Everything up to
// and including the winning match is consumed.
//
// Expect is not safe for concurrent use; one caller drives the conversation.
package expect

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"sync"
	"time"
)

// MaxBuffer bounds the unconsumed text kept between calls. Older bytes are
// dropped once the limit is reached.
const MaxBuffer = 1 << 20

const readChunk = 4096

var (
	// ErrTimeout is returned when no pattern matched before the deadline.
	ErrTimeout = errors.New("timed out waiting for pattern")
	// ErrEOF is returned when the stream ended before any pattern matched.
	ErrEOF = errors.New("stream closed before pattern matched")
	// ErrNoTimeout is returned when Expect is called without a positive timeout.
	ErrNoTimeout = errors.New("expect requires a positive timeout")
	// ErrNoPatterns is returned when Expect is called with nothing to match.
	ErrNoPatterns = errors.New("expect requires at least one pattern")
)

// Match describes the outcome of a successful Expect call.
type Match struct {
	// Index of the winning pattern in the list given to Expect.
	Index int
	// Before is the text consumed ahead of the match.
	Before string
	// Text is the matched text itself.
	Text string
	// Groups holds the pattern's submatches, Groups[0] being Text.
	Groups []string
}

// Expecter buffers a stream and answers Expect calls against it.
type Expecter struct {
	chunks <-chan []byte
	buf    bytes.Buffer
	eof    bool
	err    error

	stop     chan struct{}
	stopOnce sync.Once
}

// New starts reading r in the background. The goroutine exits when r returns
// an error or Stop is called, whichever comes first.
func New(r io.Reader) *Expecter {
	ch := make(chan []byte, 16)
	e := &Expecter{chunks: ch, stop: make(chan struct{})}
	go pump(r, ch, e)
	return e
}

// Stop tells the reader goroutine to exit without delivering more data. It
// does not unblock a Read in progress; close the underlying stream for that.
// Safe to call more than once.
func (e *Expecter) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// pump copies r into ch until a read error or Stop, then closes ch. The read
// error is recorded before close so the consumer sees it after draining.
func pump(r io.Reader, ch chan<- []byte, e *Expecter) {
	defer close(ch)
	for {
		select {
		case <-e.stop:
			return
		default:
		}

		p := make([]byte, readChunk)
		n, err := r.Read(p)
		if n > 0 {
			select {
			case ch <- p[:n]:
			case <-e.stop:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.setErr(err)
			}
			return
		}
	}
}

// setErr is only written by pump before the channel closes; close provides
// the happens-before edge for the reader.
func (e *Expecter) setErr(err error) {
	e.err = err
}

// Closed reports whether the stream has ended. It only reflects what Expect
// or Drain have observed so far.
func (e *Expecter) Closed() bool {
	return e.eof
}

// Err returns the read error that ended the stream, if it was not a plain EOF.
func (e *Expecter) Err() error {
	if !e.eof {
		return nil
	}
	return e.err
}

// Buffered returns the text received but not yet consumed.
func (e *Expecter) Buffered() string {
	return e.buf.String()
}

// Drain moves any bytes already delivered by the reader into the buffer
// without blocking, and notes end of stream if it happened.
func (e *Expecter) Drain() {
	for {
		select {
		case chunk, ok := <-e.chunks:
			if !ok {
				e.eof = true
				return
			}
			e.append(chunk)
		default:
			return
		}
	}
}

// Discard drops everything buffered so far.
func (e *Expecter) Discard() {
	e.Drain()
	e.buf.Reset()
}

// Expect waits until one of patterns matches the stream, the stream ends, or
// timeout elapses.
func (e *Expecter) Expect(timeout time.Duration, patterns ...*regexp.Regexp) (Match, error) {
	if timeout <= 0 {
		return Match{}, ErrNoTimeout
	}
	if len(patterns) == 0 {
		return Match{}, ErrNoPatterns
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	e.Drain()
	for {
		if m, ok := e.scan(patterns); ok {
			return m, nil
		}
		if e.eof {
			rest := e.buf.String()
			e.buf.Reset()
			return Match{Index: -1, Before: rest}, ErrEOF
		}

		select {
		case chunk, ok := <-e.chunks:
			if !ok {
				e.eof = true
				continue
			}
			e.append(chunk)
		case <-timer.C:
			e.Drain()
			if m, ok := e.scan(patterns); ok {
				return m, nil
			}
			return Match{Index: -1, Before: e.buf.String()}, ErrTimeout
		}
	}
}

func (e *Expecter) append(chunk []byte) {
	e.buf.Write(chunk)
	if over := e.buf.Len() - MaxBuffer; over > 0 {
		e.buf.Next(over)
	}
}

// scan finds the earliest match across patterns and consumes through it.
func (e *Expecter) scan(patterns []*regexp.Regexp) (Match, bool) {
	data := e.buf.Bytes()
	best := -1
	var bestLoc []int
	for i, re := range patterns {
		loc := re.FindSubmatchIndex(data)
		if loc == nil {
			continue
		}
		if best == -1 || loc[0] < bestLoc[0] {
			best = i
			bestLoc = loc
		}
	}
	if best == -1 {
		return Match{}, false
	}

	groups := make([]string, len(bestLoc)/2)
	for g := range groups {
		if start, end := bestLoc[2*g], bestLoc[2*g+1]; start >= 0 {
			groups[g] = string(data[start:end])
		}
	}
	m := Match{
		Index:  best,
		Before: string(data[:bestLoc[0]]),
		Text:   string(data[bestLoc[0]:bestLoc[1]]),
		Groups: groups,
	}
	e.buf.Next(bestLoc[1])
	return m, true
}
