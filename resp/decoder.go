package resp

// Decoder accumulates bytes fed from a socket read loop and yields
// complete Values as they become available, hiding the buffer-rewind
// mechanics an Incomplete decode would otherwise force on the caller
// (§4.1, §8 law 2 "Resumability").
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends p to the decoder's internal buffer. The caller may reuse p
// after Feed returns; its bytes are copied.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next attempts to decode one Value from the bytes fed so far. If no
// complete value is buffered it returns ok == false and no error: the
// caller should Feed more bytes and call Next again. A non-nil error is
// unrecoverable and the Decoder must be discarded along with the
// connection it was reading for.
func (d *Decoder) Next() (Value, bool, error) {
	v, n, err := Decode(d.buf[d.pos:])
	if err == ErrIncomplete {
		return Value{}, false, nil
	}
	if err != nil {
		return Value{}, false, err
	}
	d.pos += n
	d.compact()
	return v, true, nil
}

// compact drops already-consumed bytes once they make up a meaningful
// fraction of the buffer, so a long-lived Decoder on a busy connection
// doesn't grow without bound.
func (d *Decoder) compact() {
	if d.pos == 0 {
		return
	}
	if d.pos < len(d.buf)/2 && len(d.buf) < 64*1024 {
		return
	}
	remaining := len(d.buf) - d.pos
	copy(d.buf, d.buf[d.pos:])
	d.buf = d.buf[:remaining]
	d.pos = 0
}
