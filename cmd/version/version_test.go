package version

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCommitShortensHash(t *testing.T) {
	old := Commit
	t.Cleanup(func() { Commit = old })

	Commit = "0123456789abcdef"
	assert.Equal(t, "012345678", getCommit())
}

func TestBuildTimeDisplay(t *testing.T) {
	oldVersion, oldTime := Version, BuildTime
	t.Cleanup(func() { Version, BuildTime = oldVersion, oldTime })

	BuildTime = "2026-01-02T03:04:05Z"
	Version = "v1.2.0"
	assert.Equal(t, "2026-01-02T03:04:05Z (commit time)", getBuildTimeDisplay())

	Version = "v1.2.0-dirty"
	assert.Equal(t, "2026-01-02T03:04:05Z (build time)", getBuildTimeDisplay())
}

func TestVersionCmdJSON(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })
	Version = "v9.9.9"

	cmd := NewVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json"})
	require.NoError(t, cmd.Execute())

	var info versionInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "v9.9.9", info.Version)
	assert.Equal(t, runtime.GOOS, info.Os)
}

func TestVersionCmdText(t *testing.T) {
	cmd := NewVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), VersionLabel)
	assert.Contains(t, out.String(), runtime.Version())
}
