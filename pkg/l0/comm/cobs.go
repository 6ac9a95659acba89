package comm

// StuffCOBS encodes p with Consistent Overhead Byte Stuffing.
// The result contains no 0x00 bytes and doesn't include the terminator.
func StuffCOBS(p []byte) []byte {
	out := make([]byte, 1, len(p)+len(p)/254+2)
	codeAt, code := 0, byte(1)
	for i, b := range p {
		if b == 0 {
			out[codeAt] = code
			codeAt, code = len(out), 1
			out = append(out, 0)
			continue
		}
		out = append(out, b)
		code++
		if code == 0xff && i+1 < len(p) {
			out[codeAt] = code
			codeAt, code = len(out), 1
			out = append(out, 0)
		}
	}
	out[codeAt] = code
	return out
}

// UnstuffCOBS reverses StuffCOBS. The input must not include the terminator.
func UnstuffCOBS(p []byte) ([]byte, error) {
	if len(p) == 0 {
		return nil, corrupted("empty frame", -1)
	}
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); {
		code := p[i]
		if code == 0 {
			return nil, corrupted("zero byte in stuffed data", i)
		}
		end := i + int(code)
		if end > len(p) {
			return nil, corrupted("truncated block", i)
		}
		for j := i + 1; j < end; j++ {
			if p[j] == 0 {
				return nil, corrupted("zero byte in stuffed data", j)
			}
			out = append(out, p[j])
		}
		i = end
		if code != 0xff && i < len(p) {
			out = append(out, 0)
		}
	}
	return out, nil
}
