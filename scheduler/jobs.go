package scheduler

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/trufnetwork/fdc-attestor/workflow"
)

// DefaultJobTimeout bounds a single scheduled run when neither the job nor
// the file defaults set a timeout.
const DefaultJobTimeout = 30 * time.Minute

// cronParser accepts six-field expressions (seconds first) and descriptors
// such as @every 10m.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// JobSpec is one entry of the jobs file.
type JobSpec struct {
	Name     string                 `mapstructure:"name"`
	Schedule string                 `mapstructure:"schedule"`
	Timeout  time.Duration          `mapstructure:"timeout"`
	Disabled bool                   `mapstructure:"disabled"`
	Request  workflow.RequestConfig `mapstructure:"request"`
}

// JobsFile is the decoded jobs file.
type JobsFile struct {
	Defaults struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"defaults"`
	Jobs []JobSpec `mapstructure:"jobs"`
}

// Job is a validated, enabled JobSpec.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Params   workflow.RequestParams
}

// LoadJobsFile reads and validates the YAML jobs file at path.
func LoadJobsFile(path string) ([]Job, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	return ParseJobs(raw)
}

// ParseJobs decodes YAML job definitions. Durations may be written as Go
// duration strings ("90s", "15m").
func ParseJobs(raw []byte) ([]Job, error) {
	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse jobs yaml: %w", err)
	}

	var file JobsFile
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused: true,
		Result:      &file,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(generic); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return file.resolve()
}

func (f JobsFile) resolve() ([]Job, error) {
	if dups := lo.FindDuplicatesBy(f.Jobs, func(j JobSpec) string { return j.Name }); len(dups) > 0 {
		return nil, fmt.Errorf("duplicate job name %q", dups[0].Name)
	}

	defaultTimeout := f.Defaults.Timeout
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultJobTimeout
	}

	jobs := make([]Job, 0, len(f.Jobs))
	for i, spec := range f.Jobs {
		if spec.Disabled {
			continue
		}
		if spec.Name == "" {
			return nil, fmt.Errorf("job %d: name is required", i)
		}
		if _, err := cronParser.Parse(spec.Schedule); err != nil {
			return nil, fmt.Errorf("job %s: invalid cron schedule %q: %w", spec.Name, spec.Schedule, err)
		}
		params, err := workflow.NewRequestParams(spec.Request)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", spec.Name, err)
		}
		timeout := spec.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		jobs = append(jobs, Job{Name: spec.Name, Schedule: spec.Schedule, Timeout: timeout, Params: params})
	}
	return jobs, nil
}
