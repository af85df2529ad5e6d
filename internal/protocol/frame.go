package protocol

import "bytes"

// Wire frame: '$' <type> <body> with an optional CR/LF terminator.
// Sweep bodies are self-describing (first byte is the step count); config
// and response bodies are ASCII and CR/LF terminated.
const (
	StartMarker  = '$'
	TypeSweep    = 'S'
	TypeConfig   = 'C'
	TypeResponse = '#'
)

// Bounds on terminator-delimited bodies. If no CR/LF has appeared once this
// many body bytes are buffered, the frame is cut at the bound so a corrupt
// frame cannot stall the parser indefinitely.
const (
	maxConfigBody   = 50
	maxResponseBody = 200
)

// headerLen is marker + type byte + one body byte, the minimum needed to
// dispatch on a frame type.
const headerLen = 3

// Frame is one reassembled protocol frame. Body excludes the marker, the
// type byte and, for sweeps, the step-count byte; it is always a copy, safe
// to retain after the accumulator reuses its buffer.
type Frame struct {
	Type byte
	Body []byte
}

// extract scans buf for complete frames and reports how many leading bytes
// were consumed. It never errors: garbage before a start marker is dropped,
// a buffer without any marker is discarded wholesale, and an unrecognized
// type byte drops a single byte before rescanning. The caller retains
// buf[consumed:] and feeds it back once more data arrives.
func extract(buf []byte) (frames []Frame, consumed int) {
	i := 0
	for {
		rel := bytes.IndexByte(buf[i:], StartMarker)
		if rel < 0 {
			// No marker anywhere: accepted data loss, the stream
			// self-heals at the next marker.
			return frames, len(buf)
		}
		i += rel
		if len(buf)-i < headerLen {
			return frames, i
		}

		switch buf[i+1] {
		case TypeSweep:
			steps := int(buf[i+2])
			need := headerLen + steps
			if len(buf)-i < need {
				return frames, i
			}
			body := make([]byte, steps)
			copy(body, buf[i+headerLen:i+need])
			frames = append(frames, Frame{Type: TypeSweep, Body: body})
			i += need
			i += eatTerminator(buf[i:])

		case TypeConfig:
			n, advance := delimitedBody(buf[i+2:], maxConfigBody)
			if n < 0 {
				return frames, i
			}
			body := make([]byte, n)
			copy(body, buf[i+2:i+2+n])
			frames = append(frames, Frame{Type: TypeConfig, Body: body})
			i += 2 + advance

		case TypeResponse:
			n, advance := delimitedBody(buf[i+2:], maxResponseBody)
			if n < 0 {
				return frames, i
			}
			body := make([]byte, n)
			copy(body, buf[i+2:i+2+n])
			frames = append(frames, Frame{Type: TypeResponse, Body: body})
			i += 2 + advance

		default:
			// Unknown type byte: drop the marker and rescan.
			i++
		}
	}
}

// delimitedBody finds a CR/LF-terminated body within b, bounded at limit
// bytes. It returns the body length and how far the cursor advances
// (body plus terminator). A negative length means "incomplete, wait".
func delimitedBody(b []byte, limit int) (n, advance int) {
	window := b
	if len(window) > limit {
		window = window[:limit]
	}
	if idx := bytes.IndexAny(window, "\r\n"); idx >= 0 {
		return idx, idx + eatTerminator(b[idx:])
	}
	if len(b) < limit {
		return -1, 0
	}
	// Bounded fallback: no terminator within the window, cut the frame.
	return limit, limit
}

// eatTerminator consumes a leading CR, LF or CR LF pair.
func eatTerminator(b []byte) int {
	n := 0
	if len(b) > 0 && b[0] == '\r' {
		n++
	}
	if len(b) > n && b[n] == '\n' {
		n++
	}
	return n
}

// Accumulator reassembles arbitrarily chunked transport reads into frames.
// Exactly one accumulator exists per transport; Reset is called on
// disconnect so a stale partial frame cannot leak into the next session.
type Accumulator struct {
	buf []byte
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Feed appends chunk and returns every frame that is now complete, in wire
// order. Chunk boundaries carry no meaning: feeding a byte stream split at
// any points yields the same frame sequence.
func (a *Accumulator) Feed(chunk []byte) []Frame {
	a.buf = append(a.buf, chunk...)
	frames, consumed := extract(a.buf)
	a.buf = a.buf[:copy(a.buf, a.buf[consumed:])]
	return frames
}

// Pending reports how many bytes are buffered awaiting a complete frame.
func (a *Accumulator) Pending() int {
	return len(a.buf)
}

// Reset discards any partially buffered frame.
func (a *Accumulator) Reset() {
	a.buf = a.buf[:0]
}
