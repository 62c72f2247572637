package client

import (
	"os"
	"testing"

	"github.com/opencompile/distcc/internal/argvanalyzer"
	"github.com/opencompile/distcc/internal/discrepancy"
	"github.com/opencompile/distcc/internal/hostlist"
	"github.com/opencompile/distcc/internal/lockfile"
)

func TestVerifyAndFallbackSuccessClearsTimefile(t *testing.T) {
	dir := t.TempDir()
	host := hostlist.HostDef{Hostname: "build01"}
	if err := lockfile.MarkTimefile(dir, purposeCompile, host.Hostname); err != nil {
		t.Fatal(err)
	}

	s := &Session{opts: Options{LockDir: dir}}
	outcome, retry := s.verifyAndFallback(host, argvanalyzer.Result{}, remoteReply{status: 0, stdout: []byte("out"), stderr: []byte("err")})
	if retry {
		t.Fatal("success should not retry")
	}
	if outcome.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", outcome.ExitCode)
	}
	mtime, err := lockfile.CheckTimefile(dir, purposeCompile, host.Hostname)
	if err != nil {
		t.Fatal(err)
	}
	if !mtime.IsZero() {
		t.Fatal("expected the timefile to be removed on success")
	}
}

func TestVerifyAndFallbackSkipLocalRetry(t *testing.T) {
	os.Setenv("DISTCC_SKIP_LOCAL_RETRY", "1")
	defer os.Unsetenv("DISTCC_SKIP_LOCAL_RETRY")

	s := &Session{}
	outcome, retry := s.verifyAndFallback(hostlist.HostDef{}, argvanalyzer.Result{}, remoteReply{status: 1})
	if retry {
		t.Fatal("DISTCC_SKIP_LOCAL_RETRY should not retry")
	}
	if outcome.ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", outcome.ExitCode)
	}
}

func TestVerifyAndFallbackCrashMarksHostAndRetries(t *testing.T) {
	dir := t.TempDir()
	s := &Session{opts: Options{LockDir: dir}}
	host := hostlist.HostDef{Hostname: "build01"}

	_, retry := s.verifyAndFallback(host, argvanalyzer.Result{}, remoteReply{status: 139})
	if !retry {
		t.Fatal("a signal/crash status should ask the caller to retry with another host")
	}
	mtime, err := lockfile.CheckTimefile(dir, purposeCompile, host.Hostname)
	if err != nil {
		t.Fatal(err)
	}
	if mtime.IsZero() {
		t.Fatal("expected the crashed host's timefile to be marked")
	}
}

func TestVerifyAndFallbackNormalErrorRetriesLocallyNoHostRetry(t *testing.T) {
	s := &Session{}
	host := hostlist.HostDef{Hostname: "build01"}
	result := argvanalyzer.Result{FilteredArgv: []string{"sh", "-c", "exit 2"}}

	outcome, retry := s.verifyAndFallback(host, result, remoteReply{status: 2})
	if retry {
		t.Fatal("a normal compiler error should not ask for another host")
	}
	if outcome.ExitCode != 2 {
		t.Fatalf("exit code = %d, want 2 (matches remote and local)", outcome.ExitCode)
	}
}

func TestRecordDiscrepancyIncrementsCounterAndNotifies(t *testing.T) {
	dir := t.TempDir()
	sock := dir + "/sock"
	if err := os.WriteFile(sock, nil, 0600); err != nil {
		t.Fatal(err)
	}

	notifier := &fakeNotifier{}
	s := &Session{opts: Options{IncludeServerSocket: sock, Notifier: notifier}}
	s.recordDiscrepancy(argvanalyzer.Result{InputFile: "hello.c"}, remoteReply{})

	count, err := discrepancy.Count(discrepancy.CounterPath(sock))
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("counter = %d, want 1", count)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("notifier called %d times, want 1", len(notifier.calls))
	}
}

type fakeNotifier struct {
	calls []string
}

func (f *fakeNotifier) Notify(subject, body string) error {
	f.calls = append(f.calls, subject+": "+body)
	return nil
}
