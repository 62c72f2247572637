package wire

import (
	"fmt"
	"io"
	"os"

	"github.com/opencompile/distcc/internal/lzo"
)

// Stream wraps one end of a distcc connection (TCP socket, or the pair of
// pipes to an ssh subprocess) and knows whether bulk bodies on it are LZO
// compressed, per the negotiated protocol version (spec §4.1: "the reader
// is told by the caller which bodies to expect compressed").
type Stream struct {
	rw         io.ReadWriter
	Compressed bool
	Bulk       *BulkTransport
}

// NewStream wraps rw. bulk (may be nil, in which case a default
// BulkTransport with DefaultIOTimeout is used) provides the
// platform-specific bulk file transfer primitive used for FILE/DOTI/DOTO
// bodies that originate from or land on disk.
func NewStream(rw io.ReadWriter, compressed bool, bulk *BulkTransport) *Stream {
	return &Stream{rw: rw, Compressed: compressed, Bulk: bulk}
}

// WriteInt writes a bare int-valued token (DIST, DONE, ARGC, NFIL, STAT).
func (s *Stream) WriteInt(tag Tag, value uint32) error {
	return WriteHeader(s.rw, tag, value)
}

// ReadInt reads and validates a bare int-valued token.
func (s *Stream) ReadInt(want Tag) (uint32, error) {
	return ExpectHeader(s.rw, want)
}

// WriteBody writes a body token. If s.Compressed, body is LZO1X compressed
// first and the header's length field describes the compressed size (the
// original distcc client/server hands the plaintext length out of band --
// here it is implicit in the decompressed body the caller already knows
// how to size, matching spec §4.1's "caller is told which bodies to expect
// compressed").
func (s *Stream) WriteBody(tag Tag, body []byte) error {
	payload := body
	if s.Compressed {
		payload = lzo.Compress(make([]byte, 0, lzo.MaxCompressedLen(len(body))), body)
	}
	if err := WriteHeader(s.rw, tag, uint32(len(payload))); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := s.rw.Write(payload)
	return err
}

// ReadBody reads a body token, validating its tag, and returns the
// plaintext body (decompressing if s.Compressed).
func (s *Stream) ReadBody(want Tag) ([]byte, error) {
	length, err := ExpectHeader(s.rw, want)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(s.rw, raw); err != nil {
		return nil, ErrTruncated
	}
	if !s.Compressed {
		return raw, nil
	}
	return decompressGrowing(raw)
}

// ReadBodyEither reads a body token that may carry either of two tags
// (the server's NAME/FILE|LINK triples: a NAME is always followed by
// exactly one of FILE or LINK, and the reader can't know which until it
// arrives). Returns whichever tag was actually present.
func (s *Stream) ReadBodyEither(a, b Tag) (Tag, []byte, error) {
	got, length, err := ReadHeader(s.rw)
	if err != nil {
		return "", nil, err
	}
	if got != a && got != b {
		return "", nil, &ProtocolError{Expected: a, Got: got}
	}
	if length == 0 {
		return got, nil, nil
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(s.rw, raw); err != nil {
		return "", nil, ErrTruncated
	}
	if !s.Compressed {
		return got, raw, nil
	}
	body, err := decompressGrowing(raw)
	return got, body, err
}

// decompressGrowing decompresses raw, growing the destination buffer
// geometrically starting at 8x the compressed size on ErrOutputOverrun,
// as spec §4.1 mandates.
func decompressGrowing(raw []byte) ([]byte, error) {
	size := len(raw) * 8
	if size == 0 {
		size = 64
	}
	for {
		dst := make([]byte, 0, size)
		out, err := lzo.Decompress(dst, raw)
		if err == nil {
			return out, nil
		}
		if err == lzo.ErrOutputOverrun {
			size *= 2
			continue
		}
		return nil, fmt.Errorf("wire: decompress: %w", err)
	}
}

// WriteBodyFromFile sends a body token whose payload is the contents of
// the file at path. When uncompressed, it uses the bulk transport's
// sendfile-or-loop primitive directly from the file descriptor (spec
// §4.1's bulk transfer); when compressed, the whole file must be read into
// memory first since LZO1X has no streaming form (matching the original
// dcc_compress_file_lzo1x).
func (s *Stream) WriteBodyFromFile(tag Tag, path string) (int64, error) {
	if !s.Compressed {
		return s.writeFileRaw(tag, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := stat.Size()

	body := make([]byte, size)
	if _, err := io.ReadFull(f, body); err != nil {
		return 0, err
	}
	if err := s.WriteBody(tag, body); err != nil {
		return 0, err
	}
	return size, nil
}

// WriteBodyFromFileRaw sends path's contents uncompressed regardless of
// s.Compressed, for bodies the caller already knows are compressed (or
// otherwise unsuitable for a second pass of LZO) -- notably include-scanner
// FILE/LINK bodies, which arrive pre-compressed from the scanner's own
// mirror tree (spec §4.12).
func (s *Stream) WriteBodyFromFileRaw(tag Tag, path string) (int64, error) {
	return s.writeFileRaw(tag, path)
}

func (s *Stream) writeFileRaw(tag Tag, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := stat.Size()

	if err := WriteHeader(s.rw, tag, uint32(size)); err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, nil
	}
	bulk := s.Bulk
	if bulk == nil {
		bulk = defaultBulkTransport()
	}
	return bulk.SendFile(s.rw, f, size)
}

// ReadBodyToFile reads a body token and writes its (decompressed) contents
// to path, creating it. Returns the number of bytes written.
func (s *Stream) ReadBodyToFile(want Tag, path string) (int64, error) {
	body, err := s.ReadBody(want)
	if err != nil {
		return 0, err
	}
	if len(body) == 0 {
		// A zero-length body means "no file" per spec §4.6 (DOTO): do not create it.
		return 0, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := f.Write(body)
	return int64(n), err
}

// WriteARGV writes ARGC followed by one ARGV token per argument.
func (s *Stream) WriteARGV(argv []string) error {
	if err := s.WriteInt(TagARGC, uint32(len(argv))); err != nil {
		return err
	}
	for _, arg := range argv {
		if err := s.WriteBody(TagARGV, []byte(arg)); err != nil {
			return err
		}
	}
	return nil
}

// ReadARGV reads ARGC followed by that many ARGV tokens.
func (s *Stream) ReadARGV() ([]string, error) {
	count, err := s.ReadInt(TagARGC)
	if err != nil {
		return nil, err
	}
	argv := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		body, err := s.ReadBody(TagARGV)
		if err != nil {
			return nil, err
		}
		argv = append(argv, string(body))
	}
	return argv, nil
}
