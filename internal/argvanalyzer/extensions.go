package argvanalyzer

import "strings"

// sourceExtensions lists the suffixes the analyzer treats as an input file
// (spec §4.4's extension table). The asm variants are gated on
// AllowAssemblyInput since distributing raw assembly requires the server
// to run the same assembler, which most deployments don't enable.
var sourceExtensions = []string{
	"c", "cc", "cpp", "cxx", "cp", "c++", "C", "i", "ii", "m", "mm", "mi", "mii",
}

var sourceExtensionsAsm = []string{"M", "S", "s"}

// preprocessedExtensions are inputs already in preprocessed form -- no
// local/remote cpp step is needed for them.
var preprocessedExtensions = []string{"i", "ii", "mi", "mii"}

var preprocessedExtensionsAsm = []string{"s"}

// preprocessedSuffixFor maps a source extension to the suffix its
// preprocessed form would carry (spec §4.4's "Preprocessed-of" table).
func preprocessedSuffixFor(ext string) (string, bool) {
	switch ext {
	case "c":
		return "i", true
	case "cc", "cpp", "cxx", "cp", "c++", "C", "ii":
		return "ii", true
	case "m", "mi":
		return "mi", true
	case "mm", "mii", "M":
		return "mii", true
	case "s", "S":
		return "s", true
	default:
		return "", false
	}
}

func extOf(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return name[idx+1:]
}

// isSourceExtension reports whether ext names a compilable input, per the
// source extension table (asm forms only when allowAsm is set).
func isSourceExtension(ext string, allowAsm bool) bool {
	for _, e := range sourceExtensions {
		if e == ext {
			return true
		}
	}
	if allowAsm {
		for _, e := range sourceExtensionsAsm {
			if e == ext {
				return true
			}
		}
	}
	return false
}

// isPreprocessedExtension reports whether ext names an already-preprocessed
// input, so the client/server can skip running cpp on it.
func isPreprocessedExtension(ext string, allowAsm bool) bool {
	for _, e := range preprocessedExtensions {
		if e == ext {
			return true
		}
	}
	if allowAsm {
		for _, e := range preprocessedExtensionsAsm {
			if e == ext {
				return true
			}
		}
	}
	return false
}

// IsPreprocessed reports whether ext (as found on Result.InputExt) names an
// already-preprocessed input. Exported for the client session's discrepancy
// adjustment (spec §4.6: "input is already preprocessed" is one of the
// demotion conditions).
func IsPreprocessed(ext string, allowAsm bool) bool {
	return isPreprocessedExtension(ext, allowAsm)
}

// PreprocessedSuffix exposes preprocessedSuffixFor for the preprocessor
// driver (spec §4.5 step 1: "fresh temp path with the preprocessed
// extension").
func PreprocessedSuffix(ext string) (string, bool) {
	return preprocessedSuffixFor(ext)
}
