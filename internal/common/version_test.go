package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetVersionVars(t *testing.T) {
	t.Helper()
	oldVersion, oldBuild, oldCommit := Version, Build, GitCommit
	Version, Build, GitCommit = "dev", "unknown", "unknown"
	t.Cleanup(func() {
		Version, Build, GitCommit = oldVersion, oldBuild, oldCommit
	})
}

func TestReadVersionFile_BackfillsDefaults(t *testing.T) {
	resetVersionVars(t)

	readVersionFile(strings.NewReader(`
# stamped by the release script
version: 1.4.0
build: 2026-08-20T10:00:00Z
commit: ab12cd3
`))

	assert.Equal(t, "1.4.0", GetVersion())
	assert.Equal(t, "2026-08-20T10:00:00Z", GetBuild())
	assert.Equal(t, "ab12cd3", GetGitCommit())
}

func TestReadVersionFile_KeepsLdflagsValues(t *testing.T) {
	resetVersionVars(t)
	Version = "2.0.0" // stamped build

	readVersionFile(strings.NewReader("version: 1.4.0\nbuild: b-99\n"))

	assert.Equal(t, "2.0.0", Version, "file never overrides a stamped value")
	assert.Equal(t, "b-99", Build)
}

func TestReadVersionFile_IgnoresMalformedLines(t *testing.T) {
	resetVersionVars(t)

	readVersionFile(strings.NewReader("not-a-pair\nrelease: 9.9.9\nversion: 3.1.0\n"))

	assert.Equal(t, "3.1.0", Version)
	assert.Equal(t, "unknown", Build)
}
