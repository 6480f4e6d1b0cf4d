// Package utf8lossy decodes bytes as UTF-8, substituting U+FFFD for each
// maximal subpart of an ill-formed sequence (Unicode 15, section 3.9).
//
// This differs from strings.ToValidUTF8, which collapses a whole run of bad
// bytes into one replacement, and from ranging over a string, which yields
// one replacement per bad byte. "\xF0\x9F\x98" (a truncated emoji) yields one
// U+FFFD here; "\xFF\xFF" yields two.
package utf8lossy

import (
	"unicode/utf8"

	"golang.org/x/text/transform"
)

const replacement = "\uFFFD"

// Decoder is a transform.Transformer performing lossy UTF-8 decoding.
type Decoder struct {
	transform.NopResetter
}

// Transform implements transform.Transformer.
func (Decoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c < utf8.RuneSelf {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = c
			nDst++
			nSrc++
			continue
		}

		if _, size := utf8.DecodeRune(src[nSrc:]); size > 1 {
			if nDst+size > len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			nDst += copy(dst[nDst:], src[nSrc:nSrc+size])
			nSrc += size
			continue
		}

		n, complete := subpart(src[nSrc:])
		if !complete && !atEOF {
			return nDst, nSrc, transform.ErrShortSrc
		}
		if nDst+len(replacement) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], replacement)
		nSrc += n
	}
	return nDst, nSrc, nil
}

// subpart returns the length of the maximal ill-formed subpart at the start
// of p, which must not begin with a well-formed sequence. complete is false
// when p ended while the subpart could still have become well-formed.
func subpart(p []byte) (n int, complete bool) {
	lo, hi := byte(0x80), byte(0xBF)
	var need int
	switch c := p[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c == 0xE0:
		need, lo = 2, 0xA0
	case c == 0xED:
		need, hi = 2, 0x9F
	case c >= 0xE1 && c <= 0xEF:
		need = 2
	case c == 0xF0:
		need, lo = 3, 0x90
	case c == 0xF4:
		need, hi = 3, 0x8F
	case c >= 0xF1 && c <= 0xF3:
		need = 3
	default:
		return 1, true
	}

	for n = 1; n <= need; n++ {
		if n == len(p) {
			return n, false
		}
		if p[n] < lo || p[n] > hi {
			return n, true
		}
		lo, hi = 0x80, 0xBF
	}
	// unreachable for ill-formed input; treat as a single bad byte
	return 1, true
}

// String returns an owned UTF-8 copy of b.
func String(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, _, err := transform.Bytes(Decoder{}, b)
	if err != nil {
		// Decoder never fails at EOF
		panic(err)
	}
	return string(out)
}
