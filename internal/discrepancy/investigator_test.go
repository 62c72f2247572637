package discrepancy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFileAt(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestInvestigateNoFreshDependency(t *testing.T) {
	// Chtimes cannot move a file's ctime into the past, so compare the
	// mtimes set below through the package's stubbable time source.
	saved := buildStartCtimeNanos
	buildStartCtimeNanos = func(info os.FileInfo) int64 { return info.ModTime().UnixNano() }
	defer func() { buildStartCtimeNanos = saved }()

	dir := t.TempDir()
	old := time.Now().Add(-time.Hour)
	dep := filepath.Join(dir, "stable.h")
	writeFileAt(t, dep, old)

	dotd := filepath.Join(dir, "out.d")
	content := "out.o: " + dep + "\n"
	if err := os.WriteFile(dotd, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	// make dotd itself fresh enough to be trusted
	now := time.Now()
	if err := os.Chtimes(dotd, now, now); err != nil {
		t.Fatal(err)
	}

	buildStart := now.Add(-30 * time.Minute).UnixNano()
	fresh, err := Investigate(dotd, buildStart, "")
	if err != nil {
		t.Fatal(err)
	}
	if fresh != "" {
		t.Fatalf("expected no fresh dependency, got %q", fresh)
	}
}

func TestInvestigateFreshDependencyFound(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	dep := filepath.Join(dir, "changed.h")
	writeFileAt(t, dep, now)

	dotd := filepath.Join(dir, "out.d")
	if err := os.WriteFile(dotd, []byte("out.o: "+dep+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(dotd, now, now); err != nil {
		t.Fatal(err)
	}

	buildStart := now.Add(-time.Hour).UnixNano()
	fresh, err := Investigate(dotd, buildStart, "")
	if err != nil {
		t.Fatal(err)
	}
	if fresh != dep {
		t.Fatalf("got %q, want %q", fresh, dep)
	}
}

func TestInvestigateFreshDependencyExcluded(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	dep := filepath.Join(dir, "generated.gen.h")
	writeFileAt(t, dep, now)

	dotd := filepath.Join(dir, "out.d")
	if err := os.WriteFile(dotd, []byte("out.o: "+dep+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(dotd, now, now); err != nil {
		t.Fatal(err)
	}

	buildStart := now.Add(-time.Hour).UnixNano()
	fresh, err := Investigate(dotd, buildStart, filepath.Join(dir, "*.gen.h"))
	if err != nil {
		t.Fatal(err)
	}
	if fresh != "" {
		t.Fatalf("expected exclusion to suppress the match, got %q", fresh)
	}
}

func TestInvestigateStaleDotdIsNotTrusted(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)
	dep := filepath.Join(dir, "whatever.h")
	writeFileAt(t, dep, time.Now())

	dotd := filepath.Join(dir, "out.d")
	if err := os.WriteFile(dotd, []byte("out.o: "+dep+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(dotd, old, old); err != nil {
		t.Fatal(err)
	}

	buildStart := time.Now().Add(-time.Hour).UnixNano()
	fresh, err := Investigate(dotd, buildStart, "")
	if err != nil {
		t.Fatal(err)
	}
	if fresh != "" {
		t.Fatalf("a stale dotd should not be trusted for this analysis, got %q", fresh)
	}
}

func TestInvestigateMissingDotdMailsAndCounts(t *testing.T) {
	fresh, err := Investigate(filepath.Join(t.TempDir(), "missing.d"), time.Now().UnixNano(), "")
	if err != nil {
		t.Fatal(err)
	}
	if fresh != "" {
		t.Fatal("a missing dotd should not itself excuse the discrepancy")
	}
}

func TestShouldMailAndCountNoScannerSocket(t *testing.T) {
	ok, err := ShouldMailAndCount(filepath.Join(t.TempDir(), "nope.sock"), filepath.Join(t.TempDir(), "out.d"), "")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected unconditional mail/count when build-start can't be derived")
	}
}
