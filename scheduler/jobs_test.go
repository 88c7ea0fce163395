package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobsYAML = `
defaults:
  timeout: 20m
jobs:
  - name: btc-usd
    schedule: "0 */5 * * * *"
    timeout: 10m
    request:
      url: https://api.example.com/price
      query_params:
        symbol: BTC
      post_process_filter: .price
      response_shape_signature: (uint256)
  - name: eth-usd
    schedule: "@every 1h"
    request:
      url: https://api.example.com/price
      method: post
      body: '{"symbol":"ETH"}'
      post_process_filter: .price
      response_shape_signature: (uint256)
  - name: paused
    schedule: "not a schedule"
    disabled: true
`

func TestParseJobs(t *testing.T) {
	jobs, err := ParseJobs([]byte(jobsYAML))
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "btc-usd", jobs[0].Name)
	assert.Equal(t, 10*time.Minute, jobs[0].Timeout)
	assert.Equal(t, map[string]string{"symbol": "BTC"}, jobs[0].Params.QueryParams())

	assert.Equal(t, 20*time.Minute, jobs[1].Timeout)
	assert.Equal(t, "POST", jobs[1].Params.Method())
}

func TestLoadJobsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(jobsYAML), 0o600))

	jobs, err := LoadJobsFile(path)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	_, err = LoadJobsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseJobsErrors(t *testing.T) {
	tests := map[string]string{
		"bad yaml": "jobs: [",
		"unknown key": `
jobs:
  - name: a
    schedule: "@every 1m"
    retries: 3
`,
		"bad schedule": `
jobs:
  - name: a
    schedule: "every minute"
    request: {url: "https://x.example.com", post_process_filter: ".", response_shape_signature: "(bool)"}
`,
		"invalid request": `
jobs:
  - name: a
    schedule: "@every 1m"
    request: {url: "ftp://x.example.com", post_process_filter: ".", response_shape_signature: "(bool)"}
`,
		"duplicate names": `
jobs:
  - name: a
    schedule: "@every 1m"
    request: {url: "https://x.example.com", post_process_filter: ".", response_shape_signature: "(bool)"}
  - name: a
    schedule: "@every 2m"
    request: {url: "https://x.example.com", post_process_filter: ".", response_shape_signature: "(bool)"}
`,
		"missing name": `
jobs:
  - schedule: "@every 1m"
    request: {url: "https://x.example.com", post_process_filter: ".", response_shape_signature: "(bool)"}
`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJobs([]byte(doc))
			assert.Error(t, err)
		})
	}
}
