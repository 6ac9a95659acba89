package msgs

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// maxDepth bounds nesting of arrays and maps in a payload.
const maxDepth = 8

var (
	errLength    = errors.New("length exceeds payload")
	errTooDeep   = errors.New("nested too deep")
	errExtension = errors.New("extension types not supported")
)

// checkPayload walks the payload and rejects any array, map, string or
// binary header declaring more elements than bytes remain, before the
// decoder allocates for it.
func checkPayload(payload []byte) error {
	r := bytes.NewReader(payload)
	if err := checkValue(msgpack.NewDecoder(r), r, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func checkValue(d *msgpack.Decoder, r *bytes.Reader, depth int) error {
	if depth > maxDepth {
		return errTooDeep
	}
	c, err := d.PeekCode()
	if err != nil {
		return err
	}
	switch {
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := d.DecodeMapLen()
		if err != nil {
			return err
		}
		if n < 0 || n > r.Len()/2 {
			return errLength
		}
		for i := 0; i < n*2; i++ {
			if err := checkValue(d, r, depth+1); err != nil {
				return err
			}
		}
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := d.DecodeArrayLen()
		if err != nil {
			return err
		}
		if n < 0 || n > r.Len() {
			return errLength
		}
		for i := 0; i < n; i++ {
			if err := checkValue(d, r, depth+1); err != nil {
				return err
			}
		}
	case msgpcode.IsString(c) || msgpcode.IsBin(c):
		n, err := d.DecodeBytesLen()
		if err != nil {
			return err
		}
		if n < 0 || n > r.Len() {
			return errLength
		}
		return d.ReadFull(make([]byte, n))
	case msgpcode.IsExt(c):
		return errExtension
	default:
		return d.Skip()
	}
	return nil
}
