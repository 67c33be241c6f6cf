// Package der predicts the size of DER encodings produced by cryptobyte, so callers can pre-size storage.
package der

// Len returns the full encoded length of a TLV element with the given content length.
func Len(content int) int {
	switch {
	case content < 0x80:
		return 2 + content
	case content <= 0xff:
		return 3 + content
	case content <= 0xffff:
		return 4 + content
	case content <= 0xffffff:
		return 5 + content
	default:
		return 6 + content
	}
}

// UintLen returns the full encoded length of a non-negative INTEGER.
func UintLen(v uint64) int {
	n := 1
	for tmp := v; tmp > 0xff; tmp >>= 8 {
		n++
	}
	// A set high bit needs a leading zero byte to stay positive.
	if v>>(8*uint(n)-1)&1 == 1 {
		n++
	}
	return Len(n)
}
