package server

// includeOptions lists the argv options whose argument names a path that
// must be rehomed under the workspace when it's absolute (spec §4.8
// step 6, grounded on original_source/src/serve.c's include_options
// table).
var includeOptions = []string{
	"-I", "-include", "-imacros", "-idirafter",
	"-iprefix", "-iwithprefix", "-iwithprefixbefore",
	"-isystem", "-iquote",
}

// RewriteForServerCpp implements spec §4.8 step 6's command-line rewrite
// for a server-cpp job: rehome every absolute include/input path under
// the workspace, force a dotd to be produced, and pull out any -MT
// target so the caller can use it (instead of the rewritten orig_output)
// as the dotd rewriter's client-side target name.
func RewriteForServerCpp(argv []string, ws *Workspace, depsPath, inputFile string) (rewritten []string, dotdTarget string) {
	out := make([]string, 0, len(argv)+4)
	sawMD := false

	for i := 0; i < len(argv); i++ {
		a := argv[i]

		if a == "-MT" && i+1 < len(argv) {
			dotdTarget = argv[i+1]
			i++ // drop both "-MT" and its argument (spec: augments rather than replaces; we want replace)
			continue
		}
		if a == "-MD" || a == "-MMD" {
			sawMD = true
		}

		if opt, arg, ok := splitIncludeOption(a); ok {
			out = append(out, opt+ws.Rehome(arg))
			continue
		}
		if i+1 < len(argv) && isIncludeOptionNeedingSeparateArg(a) {
			out = append(out, a, ws.Rehome(argv[i+1]))
			i++
			continue
		}

		if ws.Rehome(a) == inputFile {
			out = append(out, inputFile)
			continue
		}

		out = append(out, a)
	}

	if !sawMD {
		out = append(out, "-MMD")
	}
	out = append(out, "-MF", depsPath)

	return out, dotdTarget
}

// splitIncludeOption reports whether a is a glued "-Ifoo"-style include
// option, returning the option prefix and its path argument.
func splitIncludeOption(a string) (opt, arg string, ok bool) {
	for _, o := range includeOptions {
		if o == "-I" {
			continue // "-Ifoo" is handled below; "-I foo" by the separate-arg path
		}
		if len(a) > len(o) && a[:len(o)] == o {
			return o, a[len(o):], true
		}
	}
	if len(a) > len("-I") && a[:2] == "-I" {
		return "-I", a[2:], true
	}
	return "", "", false
}

// isIncludeOptionNeedingSeparateArg reports whether a is exactly one of
// includeOptions (so the following argv element is its path argument).
func isIncludeOptionNeedingSeparateArg(a string) bool {
	for _, o := range includeOptions {
		if a == o {
			return true
		}
	}
	return false
}
