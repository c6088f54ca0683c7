package identity

import "crypto/md5"

const (
	base63Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_"

	// MaxObfuscatedLen caps the length of Obfuscate output.
	MaxObfuscatedLen = 25
)

// Obfuscate hides a server login or map uid behind a short base-63 digest
// of its MD5 hash. It must produce the same output as the in-game plugin,
// which streams the hash bytes through a 64-bit accumulator and emits the
// low digit whenever the accumulator reaches 63. Empty input is returned
// unchanged.
func Obfuscate(s string) string {
	if s == "" {
		return s
	}
	sum := md5.Sum([]byte(s))
	return base63Encode(sum[:])
}

func base63Encode(buf []byte) string {
	out := make([]byte, 0, MaxObfuscatedLen)
	var val uint64
	for _, b := range buf {
		val = val<<8 | uint64(b)
		for val >= 63 && len(out) < MaxObfuscatedLen {
			out = append(out, base63Alphabet[val%63])
			val /= 63
		}
	}
	if val > 0 && len(out) < MaxObfuscatedLen {
		out = append(out, base63Alphabet[val%63])
	}
	return string(out)
}
