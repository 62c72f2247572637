package argvanalyzer

import "strings"

// ExpandPreprocessorOptions rewrites each "-Wp,a,b,c" option into its
// constituent gcc options, so every later pass only has to understand the
// plain forms (spec §4.4). "-Wp,-MD,file" and "-Wp,-MMD,file" additionally
// expand to "-MD -MF file" / "-MMD -MF file", matching gcc's own special
// case for that pair.
func ExpandPreprocessorOptions(argv []string) []string {
	out := make([]string, 0, len(argv))
	for _, arg := range argv {
		if !strings.HasPrefix(arg, "-Wp,") {
			out = append(out, arg)
			continue
		}
		out = append(out, expandWp(arg)...)
	}
	return out
}

func expandWp(arg string) []string {
	parts := strings.Split(strings.TrimPrefix(arg, "-Wp,"), ",")
	var out []string
	for i := 0; i < len(parts); i++ {
		opt := parts[i]
		out = append(out, opt)
		if (opt == "-MD" || opt == "-MMD") && i+1 < len(parts) {
			i++
			out = append(out, "-MF", parts[i])
		}
	}
	return out
}
