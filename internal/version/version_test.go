package version

import (
	"strings"
	"testing"
)

func TestDescribe(t *testing.T) {
	saved := GitCommit
	defer func() { GitCommit = saved }()

	GitCommit = "0123456789abcdef"
	out := Describe("myostack")
	if !strings.HasPrefix(out, "myostack "+Version+" (0123456)") {
		t.Errorf("Describe = %q", out)
	}
	if Info().Commit != "0123456" {
		t.Errorf("Commit = %q, want short hash", Info().Commit)
	}
}
