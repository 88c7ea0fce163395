package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trufnetwork/fdc-attestor/workflow"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := RootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommands(t *testing.T) {
	names := []string{}
	for _, c := range RootCmd().Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "watch", "version"})
}

func TestRunRequiresRequestFlag(t *testing.T) {
	_, err := execute(t, "run")
	assert.ErrorContains(t, err, "request")
}

func TestRunRejectsUnknownOutput(t *testing.T) {
	_, err := execute(t, "run", "--request", "x.yaml", "--output", "xml")
	assert.ErrorContains(t, err, "--output")
}

func TestRunRejectsInvalidConfigBeforeNetwork(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: https://a.example.com\npost_process_filter: .\nresponse_shape_signature: (bool)\n"), 0o600))

	t.Setenv("ATTESTOR_VERIFIER_URL", "")
	_, err := execute(t, "run", "--request", path)

	var cfgErr *workflow.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestWatchRejectsBadJobsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs:\n  - name: a\n    schedule: nope\n"), 0o600))

	_, err := execute(t, "watch", "--jobs", path)
	assert.ErrorContains(t, err, "invalid cron schedule")
}
