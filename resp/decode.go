package resp

import (
	"errors"

	"github.com/rdpipe/redispipe/rediserr"
)

// ErrIncomplete is returned by Decode when buf does not yet hold a
// complete value. Decode consumes nothing from buf in this case (§4.1
// "Incomplete" outcome); the caller retains the bytes and retries once
// more have arrived.
var ErrIncomplete = errors.New("resp: incomplete value")

// maxBulkLen mirrors Redis's own proto-max-bulk-len default, guarding
// against a corrupt or hostile length header before it is used to size
// an allocation.
const maxBulkLen = 512 * 1024 * 1024

// maxArrayLen bounds the number of elements decodeArray will allocate for
// up front, for the same reason.
const maxArrayLen = 1024 * 1024

// Decode attempts to parse exactly one RESP value from the start of buf.
// On success it returns the value and the number of bytes consumed. If
// buf does not yet contain a complete value it returns ErrIncomplete and
// n == 0: buf must be retained unmodified and re-presented, with more
// bytes appended, on the next call (§4.1, §8 law 2 "Resumability"). Any
// other error is unrecoverable (§4.1 "Malformed").
func Decode(buf []byte) (Value, int, error) {
	v, n, err := decodeAt(buf, 0)
	if err != nil {
		return Value{}, 0, err
	}
	return v, n, nil
}

// decodeAt parses one value starting at pos and returns the offset in
// buf just past it. Because it returns (and therefore commits) that
// offset only on full success, any nested
// Incomplete or Malformed outcome automatically discards the partial
// progress made parsing the value's sub-elements: there is nothing to
// rewind because nothing outside this call was ever mutated (§4.1's
// rewind-on-Incomplete requirement falls out of the recursion being pure).
func decodeAt(buf []byte, pos int) (Value, int, error) {
	if pos >= len(buf) {
		return Value{}, 0, ErrIncomplete
	}
	switch buf[pos] {
	case '+':
		return decodeLine(buf, pos, KindSimpleString)
	case '-':
		return decodeLine(buf, pos, KindError)
	case ':':
		return decodeInteger(buf, pos)
	case '$':
		return decodeBulkString(buf, pos)
	case '*':
		return decodeArray(buf, pos)
	default:
		return Value{}, 0, rediserr.NewProtocolError("unknown RESP type byte %q", buf[pos])
	}
}

func findCRLF(buf []byte, from int) int {
	for i := from; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func decodeLine(buf []byte, pos int, kind Kind) (Value, int, error) {
	idx := findCRLF(buf, pos+1)
	if idx < 0 {
		return Value{}, 0, ErrIncomplete
	}
	return Value{Kind: kind, Str: string(buf[pos+1 : idx])}, idx + 2, nil
}

// decodeDecimal parses a signed decimal integer field, as used by both
// the Integer value and the length headers of BulkString/Array, up to the
// next CRLF starting at pos.
func decodeDecimal(buf []byte, pos int) (int64, int, error) {
	idx := findCRLF(buf, pos)
	if idx < 0 {
		return 0, 0, ErrIncomplete
	}
	line := buf[pos:idx]
	if len(line) == 0 {
		return 0, 0, rediserr.NewProtocolError("empty integer field")
	}
	neg := false
	i := 0
	if line[0] == '-' {
		neg = true
		i = 1
	}
	if i >= len(line) {
		return 0, 0, rediserr.NewProtocolError("malformed integer %q", line)
	}
	var v int64
	for ; i < len(line); i++ {
		c := line[i]
		if c < '0' || c > '9' {
			return 0, 0, rediserr.NewProtocolError("malformed integer %q", line)
		}
		d := int64(c - '0')
		if v > (maxInt64-d)/10 {
			return 0, 0, rediserr.NewProtocolError("integer overflow %q", line)
		}
		v = v*10 + d
	}
	if neg {
		v = -v
	}
	return v, idx + 2, nil
}

const maxInt64 = 1<<63 - 1

func decodeInteger(buf []byte, pos int) (Value, int, error) {
	v, next, err := decodeDecimal(buf, pos+1)
	if err != nil {
		return Value{}, 0, err
	}
	return Value{Kind: KindInteger, Int: v}, next, nil
}

func decodeBulkString(buf []byte, pos int) (Value, int, error) {
	n, next, err := decodeDecimal(buf, pos+1)
	if err != nil {
		return Value{}, 0, err
	}
	if n == -1 {
		return Value{Kind: KindBulkString, Bulk: nil}, next, nil
	}
	if n < 0 {
		return Value{}, 0, rediserr.NewProtocolError("negative bulk string length %d", n)
	}
	if n > maxBulkLen {
		return Value{}, 0, rediserr.NewProtocolError("bulk string length %d exceeds limit", n)
	}
	end := next + int(n)
	if end+2 > len(buf) {
		return Value{}, 0, ErrIncomplete
	}
	if buf[end] != '\r' || buf[end+1] != '\n' {
		return Value{}, 0, rediserr.NewProtocolError("bulk string missing trailing CRLF")
	}
	data := make([]byte, n)
	copy(data, buf[next:end])
	return Value{Kind: KindBulkString, Bulk: data}, end + 2, nil
}

func decodeArray(buf []byte, pos int) (Value, int, error) {
	n, next, err := decodeDecimal(buf, pos+1)
	if err != nil {
		return Value{}, 0, err
	}
	if n == -1 {
		return Value{Kind: KindArray, Items: nil}, next, nil
	}
	if n < 0 {
		return Value{}, 0, rediserr.NewProtocolError("negative array length %d", n)
	}
	if n > maxArrayLen {
		return Value{}, 0, rediserr.NewProtocolError("array length %d exceeds limit", n)
	}
	items := make([]Value, 0, n)
	cursor := next
	for i := int64(0); i < n; i++ {
		v, end, err := decodeAt(buf, cursor)
		if err != nil {
			return Value{}, 0, err
		}
		items = append(items, v)
		cursor = end
	}
	return Value{Kind: KindArray, Items: items}, cursor, nil
}
