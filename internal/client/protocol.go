package client

import (
	"fmt"
	"os"

	"github.com/opencompile/distcc/internal/includesrv"
	"github.com/opencompile/distcc/internal/tempfile"
	"github.com/opencompile/distcc/internal/wire"
)

// remoteRequest carries everything the Send phase needs beyond the raw
// argv: whether this is a server-cpp exchange, the scanned include files
// to ship after ARGV, and the preprocessed-source job to wait on when
// it's a client-cpp exchange.
type remoteRequest struct {
	protover   int
	cppServer  bool
	argv       []string
	cwd        string
	scanned    []includesrv.File
	cppJob     *preprocessJob
	outputPath string
	dotdPath   string
	wantDotd   bool
}

// sendRequest implements spec §4.6's Send phase. Corking is handled by
// the caller around the whole exchange.
func sendRequest(stream *wire.Stream, req remoteRequest) error {
	if err := stream.WriteInt(wire.TagDIST, uint32(req.protover)); err != nil {
		return err
	}

	if req.cppServer {
		if err := stream.WriteBody(wire.TagCDIR, []byte(req.cwd)); err != nil {
			return err
		}
	}

	if err := stream.WriteARGV(req.argv); err != nil {
		return err
	}

	if req.cppServer {
		if err := stream.WriteInt(wire.TagNFIL, uint32(len(req.scanned))); err != nil {
			return err
		}
		for _, f := range req.scanned {
			original, _, _ := includesrv.UnmangleOriginalPath(f.MirrorPath)
			if err := stream.WriteBody(wire.TagNAME, []byte(original)); err != nil {
				return err
			}
			tag := wire.TagFILE
			if f.IsLink {
				tag = wire.TagLINK
			}
			// The scanner's mirror tree already holds these bodies
			// LZO-compressed; WriteBodyFromFileRaw sends them as-is
			// instead of running them through the stream's own
			// (possibly also-on) bulk compression a second time.
			if _, err := stream.WriteBodyFromFileRaw(tag, f.MirrorPath); err != nil {
				return err
			}
		}
	} else {
		exitCode, err := req.cppJob.wait()
		if err != nil {
			return fmt.Errorf("client: preprocessor: %w", err)
		}
		if exitCode != 0 {
			return fmt.Errorf("client: preprocessor exited %d, not distributing", exitCode)
		}
		if _, err := stream.WriteBodyFromFile(wire.TagDOTI, req.cppJob.destPath); err != nil {
			return err
		}
	}

	return nil
}

// remoteReply is the parsed outcome of the Receive phase.
type remoteReply struct {
	protover int
	status   int
	stderr   []byte
	stdout   []byte
	dotdPath string // empty if no DOTD was received
}

// recvReply implements spec §4.6's Receive phase. serrPath is a fresh
// temp file the caller provides to capture SERR without writing it to
// the client's own stderr yet -- the caller decides whether to emit it
// only after Verify decides the outcome.
func recvReply(stream *wire.Stream, outputPath, serrPath, dotdDestPath string, wantDotd bool) (remoteReply, error) {
	protover, err := stream.ReadInt(wire.TagDONE)
	if err != nil {
		return remoteReply{}, err
	}

	status, err := stream.ReadInt(wire.TagSTAT)
	if err != nil {
		return remoteReply{}, err
	}

	if _, err := stream.ReadBodyToFile(wire.TagSERR, serrPath); err != nil {
		return remoteReply{}, err
	}
	serr, err := os.ReadFile(serrPath)
	if err != nil {
		serr = nil
	}

	sout, err := stream.ReadBody(wire.TagSOUT)
	if err != nil {
		return remoteReply{}, err
	}

	if _, err := stream.ReadBodyToFile(wire.TagDOTO, outputPath); err != nil {
		return remoteReply{}, err
	}

	reply := remoteReply{protover: int(protover), status: int(status), stderr: serr, stdout: sout}

	if wantDotd {
		if _, err := stream.ReadBodyToFile(wire.TagDOTD, dotdDestPath); err != nil {
			return remoteReply{}, err
		}
		reply.dotdPath = dotdDestPath
	}

	return reply, nil
}

// newSerrTempFile allocates the scratch file recvReply captures SERR
// into, so a later local retry can compare (or suppress) it without
// having already polluted the client's real stderr.
func newSerrTempFile() (string, error) {
	return tempfile.NewFile("distcc_serr", ".txt")
}
