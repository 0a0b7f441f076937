// Package exitcode defines process exit codes following BSD sysexits
// conventions.
package exitcode

import (
	stderrors "errors"

	"pitrctl/internal/errors"
)

const (
	OK          = 0
	General     = 1
	Usage       = 64 // EX_USAGE: bad command line
	DataErr     = 65 // EX_DATAERR: bad input data (invalid target, corrupt marker)
	NoInput     = 66 // EX_NOINPUT: missing input (no backup found)
	Unavailable = 69 // EX_UNAVAILABLE: service unavailable (server not ready, cloud down)
	Software    = 70 // EX_SOFTWARE: internal error
	OSErr       = 71 // EX_OSERR: OS-level failure
	CantCreat   = 73 // EX_CANTCREAT: cannot create output file
	IOErr       = 74 // EX_IOERR: I/O failure
	TempFail    = 75 // EX_TEMPFAIL: transient failure, retry may succeed
	NoPerm      = 77 // EX_NOPERM: permission denied
	ConfigErr   = 78 // EX_CONFIG: configuration error
)

var codeMap = map[string]int{
	errors.CodeInvalidTarget:      DataErr,
	errors.CodeNoBackupFound:      NoInput,
	errors.CodeChainBroken:        DataErr,
	errors.CodeCloudUnavailable:   Unavailable,
	errors.CodeToolMissing:        Unavailable,
	errors.CodePrepareFailed:      Software,
	errors.CodeCopyBackFailed:     IOErr,
	errors.CodeExtractFailed:      IOErr,
	errors.CodeBinlogExtractEmpty: NoInput,
	errors.CodeMarkerCorrupt:      DataErr,
	errors.CodeServerNotReady:     Unavailable,
	errors.CodeReplayFailed:       Software,
}

// FromError maps an error to a process exit code.
func FromError(err error) int {
	if err == nil {
		return OK
	}

	var re *errors.RestoreError
	if stderrors.As(err, &re) {
		if code, ok := codeMap[re.Code]; ok {
			return code
		}
		switch re.Category {
		case errors.CategoryConfig:
			return ConfigErr
		case errors.CategoryEnvironment, errors.CategoryCloud:
			return Unavailable
		}
		return Software
	}

	return General
}
