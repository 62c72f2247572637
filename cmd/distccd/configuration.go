package main

import (
	"os"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Configuration is the subset of distccd's flag surface that also makes
// sense as a static file, modeled on miasvanklei-nocc/cmd/nocc-server's
// Configuration/ParseConfiguration: a plain struct pre-filled with
// defaults, then overlaid by whatever keys the TOML file sets. Flags and
// DISTCC_* environment variables still take priority over all of this
// (see main's CmdEnv* calls), so the file only matters for a key nobody
// passed explicitly.
type Configuration struct {
	ListenAddr         string
	Port               int
	MaxJobs            int
	AllowCIDRs         []string
	User               string
	PIDFile            string
	LogFileName        string
	LogLevel           int
	EnableTCPInsecure  bool
	CmdListPath        string
	CmdListNumWords    int
	JobLifetimeSecs    int
	AllowAssemblyInput bool
}

// ParseConfiguration returns the built-in defaults when filePath is
// empty or doesn't exist (a config file is optional), and overlays
// whatever the TOML file sets otherwise.
func ParseConfiguration(filePath string) (Configuration, error) {
	config := Configuration{
		ListenAddr:      "0.0.0.0",
		Port:            3632,
		MaxJobs:         runtime.NumCPU() + 2,
		LogFileName:     "stderr",
		LogLevel:        0,
		CmdListNumWords: 2,
	}

	if filePath == "" {
		return config, nil
	}
	if _, err := os.Stat(filePath); err != nil {
		return config, nil
	}
	if _, err := toml.DecodeFile(filePath, &config); err != nil {
		return Configuration{}, err
	}
	return config, nil
}
