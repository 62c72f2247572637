package wire

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultIOTimeout is the select-with-timeout window used while pumping
// bulk data, overridable via DISTCC_IO_TIMEOUT (spec §4.1, §6).
const DefaultIOTimeout = 300 * time.Second

// BulkTransport moves a file's bytes onto a writer, preferring sendfile(2)
// on platforms that offer it and falling back to a read/write loop
// otherwise (spec §4.1). Partial sends are normal and retried; on EAGAIN
// the sendfile path waits for the socket to become writable, with no
// deadline beyond any already set on the connection.
type BulkTransport struct {
	IOTimeout time.Duration
}

func defaultBulkTransport() *BulkTransport {
	return &BulkTransport{IOTimeout: DefaultIOTimeout}
}

// SendFile writes size bytes from f to w. If w is backed by a TCP
// connection (so it has an fd sendfile can target) it is used; otherwise
// (ssh pipe, in-memory pipe, etc.) a buffered copy loop runs instead.
func (b *BulkTransport) SendFile(w io.Writer, f *os.File, size int64) (int64, error) {
	if b.IOTimeout <= 0 {
		b.IOTimeout = DefaultIOTimeout
	}

	if tc, ok := underlyingTCPConn(w); ok {
		if n, err := b.sendFileSyscall(tc, f, size); err == nil {
			return n, nil
		}
		// fall through to the portable loop on any sendfile failure
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return 0, err
		}
	}
	return b.copyLoop(w, f, size)
}

// sendFileSyscall uses the Linux sendfile(2) syscall directly against the
// connection's raw fd, retrying on EAGAIN/EINTR and partial writes --
// partial sends are the normal case for a non-blocking or heavily loaded
// socket, not an error.
func (b *BulkTransport) sendFileSyscall(tc *net.TCPConn, f *os.File, size int64) (int64, error) {
	rawConn, err := tc.SyscallConn()
	if err != nil {
		return 0, err
	}

	var total int64
	var sendErr error
	offset := int64(0)

	for total < size {
		deadline := time.Now().Add(b.IOTimeout)
		progressed := false

		writeErr := rawConn.Write(func(fd uintptr) bool {
			n, err := unix.Sendfile(int(fd), int(f.Fd()), &offset, int(size-total))
			if n > 0 {
				total += int64(n)
				progressed = true
			}
			if err == nil {
				return true // done writing what the kernel accepted this call
			}
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				return false // ask runtime to wait for writability and retry
			}
			sendErr = err
			return true
		})

		if writeErr != nil {
			return total, writeErr
		}
		if sendErr != nil {
			return total, sendErr
		}
		if total >= size {
			break
		}
		if !progressed && time.Now().After(deadline) {
			return total, errTimeout
		}
	}
	return total, nil
}

var errTimeout = errors.New("wire: I/O timeout")

// copyLoop is the portable fallback: a plain read/write loop, used for
// ssh pipes and any writer that isn't a raw TCP socket. It applies no
// timeout of its own.
func (b *BulkTransport) copyLoop(w io.Writer, r io.Reader, size int64) (int64, error) {
	limited := io.LimitReader(r, size)
	buf := make([]byte, 64*1024)
	var total int64
	for total < size {
		n, rerr := limited.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return total, rerr
		}
	}
	return total, nil
}

func underlyingTCPConn(w io.Writer) (*net.TCPConn, bool) {
	tc, ok := w.(*net.TCPConn)
	return tc, ok
}

// SetCork toggles TCP_CORK (spec §4.1: "corking is enabled around each
// direction of a compile exchange and released at the end, to coalesce
// small packets without starving"). A no-op (and not an error) on
// connections without an fd or platforms without TCP_CORK.
func SetCork(conn net.Conn, on bool) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	rawConn, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	val := 0
	if on {
		val = 1
	}
	var sockErr error
	ctrlErr := rawConn.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_CORK, val)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	if sockErr != nil && !errors.Is(sockErr, unix.ENOPROTOOPT) && !errors.Is(sockErr, unix.ENOTSUP) {
		return sockErr
	}
	return nil
}
