package resp

import "strconv"

// Encode appends the wire representation of v to buf and returns the
// extended slice. Encode is a total function and is the exact inverse of
// Decode (§4.1, §8 law 1 "Round-trip"): for every v constructible through
// the exported builders, Decode(Encode(nil, v)) reproduces v and consumes
// the whole encoding.
func Encode(buf []byte, v Value) []byte {
	switch v.Kind {
	case KindSimpleString:
		buf = append(buf, '+')
		buf = append(buf, v.Str...)
		return appendCRLF(buf)
	case KindError:
		buf = append(buf, '-')
		buf = append(buf, v.Str...)
		return appendCRLF(buf)
	case KindInteger:
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, v.Int, 10)
		return appendCRLF(buf)
	case KindBulkString:
		if v.Bulk == nil {
			return append(buf, '$', '-', '1', '\r', '\n')
		}
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(v.Bulk)), 10)
		buf = appendCRLF(buf)
		buf = append(buf, v.Bulk...)
		return appendCRLF(buf)
	case KindArray:
		if v.Items == nil {
			return append(buf, '*', '-', '1', '\r', '\n')
		}
		buf = append(buf, '*')
		buf = strconv.AppendInt(buf, int64(len(v.Items)), 10)
		buf = appendCRLF(buf)
		for _, item := range v.Items {
			buf = Encode(buf, item)
		}
		return buf
	default:
		panic("resp: Encode: unknown value kind")
	}
}

func appendCRLF(buf []byte) []byte {
	return append(buf, '\r', '\n')
}

// EncodeCommand builds the RESP Array-of-BulkString wire form a command
// and its arguments must take (§6: "Clients only ever send Array of
// BulkString").
func EncodeCommand(buf []byte, cmd string, args [][]byte) []byte {
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(args)+1), 10)
	buf = appendCRLF(buf)
	buf = append(buf, '$')
	buf = strconv.AppendInt(buf, int64(len(cmd)), 10)
	buf = appendCRLF(buf)
	buf = append(buf, cmd...)
	buf = appendCRLF(buf)
	for _, a := range args {
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(a)), 10)
		buf = appendCRLF(buf)
		buf = append(buf, a...)
		buf = appendCRLF(buf)
	}
	return buf
}
