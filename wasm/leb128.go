package wasm

// LEB128 encoders for the binary format.

// AppendULEB128 appends v as unsigned LEB128.
func AppendULEB128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

// AppendSLEB128 appends v as signed LEB128.
func AppendSLEB128(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// ReadULEB128 decodes an unsigned value and returns it with the number of
// bytes consumed. n is 0 on truncated or overlong input.
func ReadULEB128(data []byte) (v uint64, n int) {
	var shift uint
	for i, b := range data {
		if shift >= 64 {
			return 0, 0
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, 0
}

// ReadSLEB128 decodes a signed value.
func ReadSLEB128(data []byte) (v int64, n int) {
	var shift uint
	for i, b := range data {
		if shift >= 64 {
			return 0, 0
		}
		v |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				v |= -1 << shift
			}
			return v, i + 1
		}
	}
	return 0, 0
}
