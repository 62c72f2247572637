package discrepancy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCounterPathDerivation(t *testing.T) {
	got := CounterPath("/tmp/distcc-XYZ/include-server.sock")
	want := "/tmp/distcc-XYZ/include-server.sock.discrepancies"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCountAbsentFileIsZero(t *testing.T) {
	n, err := Count(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("got %d", n)
	}
}

func TestIncrementGrowsByOneByte(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")
	for i := 1; i <= 3; i++ {
		if err := Increment(path); err != nil {
			t.Fatal(err)
		}
		n, err := Count(path)
		if err != nil {
			t.Fatal(err)
		}
		if n != i {
			t.Fatalf("after %d increments, got size %d", i, n)
		}
	}
}

func TestShouldDemoteAtThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")
	demote, err := ShouldDemote(path, DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if demote {
		t.Fatal("should not demote before any discrepancy recorded")
	}

	if err := Increment(path); err != nil {
		t.Fatal(err)
	}
	demote, err = ShouldDemote(path, DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if !demote {
		t.Fatal("should demote once count reaches threshold")
	}
}

func TestBuildStartReadsSocketCtime(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "scanner.sock")
	if err := os.WriteFile(sock, nil, 0644); err != nil {
		t.Fatal(err)
	}
	info, err := BuildStart(sock)
	if err != nil {
		t.Fatal(err)
	}
	if buildStartCtimeNanos(info) <= 0 {
		t.Fatal("expected a positive ctime")
	}
}

func TestBuildStartMissingSocket(t *testing.T) {
	_, err := BuildStart(filepath.Join(t.TempDir(), "nope.sock"))
	if err == nil {
		t.Fatal("expected an error for a missing socket")
	}
}
