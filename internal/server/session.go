package server

import (
	"fmt"
	"io"
	"time"

	"github.com/opencompile/distcc/internal/argvanalyzer"
	"github.com/opencompile/distcc/internal/common"
	"github.com/opencompile/distcc/internal/debuginfo"
	"github.com/opencompile/distcc/internal/dotd"
	"github.com/opencompile/distcc/internal/hostlist"
	"github.com/opencompile/distcc/internal/tempfile"
	"github.com/opencompile/distcc/internal/wire"
)

// Options configures one HandleConnection call. cmd/distccd fills this in
// from flags/environment once at startup and shares it across connections.
type Options struct {
	CmdList            *CmdList
	EnableTCPInsecure  bool
	IOTimeout          time.Duration
	AllowAssemblyInput bool
	Logger             *common.LoggerWrapper
}

func (o Options) logf(v ...interface{}) {
	if o.Logger != nil {
		o.Logger.Info(1, v...)
	}
}

// HandleConnection runs spec §4.8's ten steps for one accepted
// connection: read the request, materialize whatever files server-side
// preprocessing needs, resolve and run the compiler, patch the response,
// and send it back. The caller (internal/daemonsrv) owns accept/fork/
// concurrency-cap decisions; this function owns everything after that.
func HandleConnection(conn io.ReadWriteCloser, opts Options) error {
	defer conn.Close()
	defer tempfile.Cleanup(tempfile.SaveTempsEnabled())

	protoverValue, err := wire.ExpectHeader(conn, wire.TagDIST)
	if err != nil {
		return fmt.Errorf("server: read DIST: %w", err)
	}
	protover := int(protoverValue)
	compression, cppWhere, ok := hostlist.FeaturesOf(protover)
	if !ok {
		return fmt.Errorf("server: unsupported protover %d", protover)
	}

	stream := wire.NewStream(conn, compression == hostlist.CompressionLZO1X, nil)

	var ws *Workspace
	if cppWhere == hostlist.CppServer {
		clientCwd, err := stream.ReadBody(wire.TagCDIR)
		if err != nil {
			return fmt.Errorf("server: read CDIR: %w", err)
		}
		ws, err = NewWorkspace(string(clientCwd))
		if err != nil {
			return err
		}
	}

	argv, err := stream.ReadARGV()
	if err != nil {
		return fmt.Errorf("server: read ARGV: %w", err)
	}

	result := argvanalyzer.Analyze(argv, argvanalyzer.Options{AllowAssemblyInput: opts.AllowAssemblyInput})

	objOutPath, err := tempfile.NewFile("distccd", ".o")
	if err != nil {
		return err
	}

	var dotdPath, dotdTarget string
	runArgv := result.FilteredArgv

	if cppWhere == hostlist.CppServer {
		if err := receiveFiles(stream, ws); err != nil {
			return err
		}
		depsPath, err := tempfile.NewFile("distccd", ".deps")
		if err != nil {
			return err
		}
		dotdPath = depsPath
		runArgv = setOutputFile(runArgv, result.OutputFile, objOutPath)
		runArgv, dotdTarget = RewriteForServerCpp(runArgv, ws, dotdPath, ws.Rehome(result.InputFile))
	} else {
		inPath, err := tempfile.NewFile("distccd", preprocessedSuffix(result.InputExt))
		if err != nil {
			return err
		}
		if _, err := stream.ReadBodyToFile(wire.TagDOTI, inPath); err != nil {
			return fmt.Errorf("server: read DOTI: %w", err)
		}
		runArgv = setInputFile(runArgv, result.InputFile, inPath)
		runArgv = setOutputFile(runArgv, result.OutputFile, objOutPath)
	}

	if err := RejectUnsafeOptions(runArgv); err != nil {
		return respondCompileError(stream, protover, err)
	}

	resolved, err := ResolveCompiler(runArgv[0], opts.CmdList, opts.EnableTCPInsecure)
	if err != nil {
		return respondCompileError(stream, protover, err)
	}
	runArgv[0] = resolved

	cwd := "/"
	if ws != nil {
		cwd = ws.ServerCwd
	}
	outcome, err := RunCompiler(resolved, runArgv[1:], cwd, opts.IOTimeout)
	if err != nil {
		return fmt.Errorf("server: spawn compiler: %w", err)
	}

	opts.logf("compile", resolved, "exit", outcome.ExitCode, result.InputFile)

	if err := stream.WriteInt(wire.TagDONE, uint32(protover)); err != nil {
		return err
	}
	if err := stream.WriteInt(wire.TagSTAT, uint32(outcome.ExitCode)); err != nil {
		return err
	}
	if err := stream.WriteBody(wire.TagSERR, outcome.Stderr); err != nil {
		return err
	}
	if err := stream.WriteBody(wire.TagSOUT, outcome.Stdout); err != nil {
		return err
	}

	if outcome.ExitCode != 0 {
		return stream.WriteInt(wire.TagDOTO, 0)
	}

	if ws != nil {
		if err := debuginfo.PatchFile(objOutPath, "/", ws.TempRoot); err != nil {
			opts.logf("debuginfo patch failed, sending unpatched object", err)
		}
	}
	if _, err := stream.WriteBodyFromFile(wire.TagDOTO, objOutPath); err != nil {
		return fmt.Errorf("server: write DOTO: %w", err)
	}

	if cppWhere == hostlist.CppServer {
		target := dotdTarget
		if target == "" {
			target = result.OutputFile
		}
		cleaned, err := tempfile.NewFile("distccd", ".d")
		if err != nil {
			return err
		}
		if err := dotd.Rewrite(dotdPath, ws.TempRoot, target, objOutPath, cleaned); err != nil {
			return fmt.Errorf("server: rewrite dotd: %w", err)
		}
		if _, err := stream.WriteBodyFromFile(wire.TagDOTD, cleaned); err != nil {
			return fmt.Errorf("server: write DOTD: %w", err)
		}
	}

	return nil
}

// respondCompileError sends a synthetic failed-compile reply (status 1,
// the error text as stderr, no object) for requests rejected before the
// compiler is ever spawned -- e.g. an unsafe option or a disallowed
// compiler name.
func respondCompileError(stream *wire.Stream, protover int, cause error) error {
	if err := stream.WriteInt(wire.TagDONE, uint32(protover)); err != nil {
		return err
	}
	if err := stream.WriteInt(wire.TagSTAT, 1); err != nil {
		return err
	}
	if err := stream.WriteBody(wire.TagSERR, []byte(cause.Error()+"\n")); err != nil {
		return err
	}
	if err := stream.WriteBody(wire.TagSOUT, nil); err != nil {
		return err
	}
	return stream.WriteInt(wire.TagDOTO, 0)
}

// receiveFiles implements spec §4.8 step 6's NFIL loop: read NFIL, then
// that many (NAME, FILE|LINK) pairs, materializing each into ws.
func receiveFiles(stream *wire.Stream, ws *Workspace) error {
	nfil, err := stream.ReadInt(wire.TagNFIL)
	if err != nil {
		return fmt.Errorf("server: read NFIL: %w", err)
	}
	for i := uint32(0); i < nfil; i++ {
		name, err := stream.ReadBody(wire.TagNAME)
		if err != nil {
			return fmt.Errorf("server: read NAME: %w", err)
		}
		tag, body, err := stream.ReadBodyEither(wire.TagFILE, wire.TagLINK)
		if err != nil {
			return fmt.Errorf("server: read FILE|LINK for %s: %w", name, err)
		}
		if err := ws.MaterializeFile(string(name), body, tag == wire.TagLINK); err != nil {
			return err
		}
	}
	return nil
}

func setOutputFile(argv []string, origOutput, newOutput string) []string {
	return replaceArg(argv, origOutput, newOutput)
}

func setInputFile(argv []string, origInput, newInput string) []string {
	return replaceArg(argv, origInput, newInput)
}

func replaceArg(argv []string, from, to string) []string {
	if from == "" {
		return argv
	}
	out := make([]string, len(argv))
	copy(out, argv)
	for i, a := range out {
		if a == from {
			out[i] = to
		}
	}
	return out
}

func preprocessedSuffix(ext string) string {
	if suffix, ok := argvanalyzer.PreprocessedSuffix(ext); ok {
		return "." + suffix
	}
	return ".tmp"
}
