package common

// Exit codes returned by the distcc client and daemon binaries, mirroring
// the fixed enum in the original distcc's exitcode.h.
const (
	ExitOK               = 0
	ExitGeneralFailure    = 100
	ExitBadArguments      = 101
	ExitBindFailed        = 102
	ExitConnectFailed     = 103
	ExitCompilerCrashed   = 104
	ExitOutOfMemory       = 105
	ExitBadHostSpec       = 106
	ExitIO                = 107
	ExitTruncated         = 108
	ExitProtocol          = 109
	ExitCompilerMissing   = 110
	ExitRecursion         = 111
	ExitSetuidFailed      = 112
	ExitAccessDenied      = 113
	ExitBusy              = 114
	ExitNoSuchFile        = 115
	ExitNoHosts           = 116
	ExitTimeout           = 118
	ExitLocalCppOnly      = 120
)
