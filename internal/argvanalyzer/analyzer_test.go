package argvanalyzer

import (
	"reflect"
	"testing"
)

func TestPlainCompile(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "hello.c", "-o", "hello.o"}, Options{})
	if r.Verdict != Distribute {
		t.Fatalf("got %v", r.Verdict)
	}
	if r.InputFile != "hello.c" || r.OutputFile != "hello.o" {
		t.Fatalf("got %+v", r)
	}
}

func TestSynthesizeOutput(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "hello.c"}, Options{})
	if r.Verdict != Distribute || r.OutputFile != "hello.o" {
		t.Fatalf("got %+v", r)
	}
	want := []string{"cc", "-c", "hello.c", "-o", "hello.o"}
	if !reflect.DeepEqual(r.FilteredArgv, want) {
		t.Fatalf("got argv %v, want %v", r.FilteredArgv, want)
	}
}

func TestSynthesizeOutputForDashS(t *testing.T) {
	r := Analyze([]string{"cc", "-S", "hello.c"}, Options{})
	if r.Verdict != Distribute || r.OutputFile != "hello.s" {
		t.Fatalf("got %+v", r)
	}
}

func TestDashECppOnly(t *testing.T) {
	r := Analyze([]string{"cc", "-E", "hello.c", "-o", "hello.i"}, Options{})
	if r.Verdict != LocalCppOnly {
		t.Fatalf("got %v", r.Verdict)
	}
}

func TestMDKept(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "-MD", "-MF", "hello.d", "hello.c", "-o", "hello.o"}, Options{})
	if r.Verdict != Distribute {
		t.Fatalf("got %v", r.Verdict)
	}
}

func TestOtherMOptionForcesLocal(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "-M", "hello.c", "-o", "hello.o"}, Options{})
	if r.Verdict != LocalAll {
		t.Fatalf("got %v", r.Verdict)
	}
}

func TestMarchNativeForcesLocal(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "-march=native", "hello.c", "-o", "hello.o"}, Options{})
	if r.Verdict != LocalAll {
		t.Fatalf("got %v", r.Verdict)
	}
}

func TestSpecsForcesLocal(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "-specs=foo.specs", "hello.c", "-o", "hello.o"}, Options{})
	if r.Verdict != LocalAll {
		t.Fatalf("got %v", r.Verdict)
	}
}

func TestProfileForcesLocal(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "-fprofile-generate", "hello.c", "-o", "hello.o"}, Options{})
	if r.Verdict != LocalAll {
		t.Fatalf("got %v", r.Verdict)
	}
}

func TestDashXUnknownLangForcesLocal(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "-x", "assembler", "hello.s", "-o", "hello.o"}, Options{})
	if r.Verdict != LocalAll {
		t.Fatalf("got %v", r.Verdict)
	}
}

func TestDashXKnownLangDistributes(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "-x", "c++", "hello.cc", "-o", "hello.o"}, Options{})
	if r.Verdict != Distribute {
		t.Fatalf("got %v", r.Verdict)
	}
}

func TestTwoInputsForcesLocal(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "a.c", "b.c", "-o", "hello.o"}, Options{})
	if r.Verdict != LocalAll {
		t.Fatalf("got %v", r.Verdict)
	}
}

func TestNoCOrSForcesLocal(t *testing.T) {
	r := Analyze([]string{"cc", "hello.c", "-o", "hello"}, Options{})
	if r.Verdict != LocalAll {
		t.Fatalf("got %v", r.Verdict)
	}
}

func TestNoInputForcesLocal(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "-o", "hello.o"}, Options{})
	if r.Verdict != LocalAll {
		t.Fatalf("got %v", r.Verdict)
	}
}

func TestConftestForcesLocal(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "conftest.c", "-o", "conftest.o"}, Options{})
	if r.Verdict != LocalAll {
		t.Fatalf("got %v", r.Verdict)
	}
}

func TestOutputToStdoutForcesLocal(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "hello.c", "-o", "-"}, Options{})
	if r.Verdict != LocalAll {
		t.Fatalf("got %v", r.Verdict)
	}
}

func TestGluedOutputFlag(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "hello.c", "-ohello.o"}, Options{})
	if r.Verdict != Distribute || r.OutputFile != "hello.o" {
		t.Fatalf("got %+v", r)
	}
}

func TestAssemblyInputGatedByOption(t *testing.T) {
	r := Analyze([]string{"cc", "-c", "hello.s", "-o", "hello.o"}, Options{})
	if r.Verdict != LocalAll {
		t.Fatalf("expected assembly input to force local without AllowAssemblyInput, got %v", r.Verdict)
	}
	r2 := Analyze([]string{"cc", "-c", "hello.s", "-o", "hello.o"}, Options{AllowAssemblyInput: true})
	if r2.Verdict != Distribute {
		t.Fatalf("expected assembly input to distribute with AllowAssemblyInput, got %v", r2.Verdict)
	}
}

func TestDiagnosticsColorPassthrough(t *testing.T) {
	argv := []string{"cc", "-c", "-fdiagnostics-color=always", "hello.c", "-o", "hello.o"}
	r := Analyze(argv, Options{})
	if r.Verdict != Distribute {
		t.Fatalf("got %v", r.Verdict)
	}
	found := false
	for _, a := range r.FilteredArgv {
		if a == "-fdiagnostics-color=always" {
			found = true
		}
	}
	if !found {
		t.Fatal("-fdiagnostics-color should pass through untouched")
	}
}
