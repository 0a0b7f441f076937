package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(CodeNoBackupFound, CategoryCatalog, "no backup found at or before 20250101_000000")
	msg := err.Error()
	if !strings.HasPrefix(msg, CodeNoBackupFound+": ") {
		t.Errorf("Error() = %q", msg)
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, CodeCloudUnavailable, CategoryCloud, "listing backups")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestCodeOfThroughWrapping(t *testing.T) {
	inner := New(CodeReplayFailed, CategoryReplay, "replay failed")
	outer := fmt.Errorf("apply-binlog: %w", inner)

	if got := CodeOf(outer); got != CodeReplayFailed {
		t.Errorf("CodeOf = %q", got)
	}
	if !Is(outer, CodeReplayFailed) {
		t.Error("Is should match through wrapping")
	}
	if Is(outer, CodeNoBackupFound) {
		t.Error("Is matched the wrong code")
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(stderrors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q", got)
	}
}

func TestWithRemediation(t *testing.T) {
	err := New(CodeReplayFailed, CategoryReplay, "x").WithRemediation("run it manually")
	if err.Remediation != "run it manually" {
		t.Errorf("Remediation = %q", err.Remediation)
	}
}
