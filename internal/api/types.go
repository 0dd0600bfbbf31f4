package api

import (
	"net/url"
	"strings"
	"time"
)

// Run states reported by the service.
const (
	StateQueued  = "queued"
	StateRunning = "running"
	StatePassed  = "passed"
	StateFailure = "failure"
	StateError   = "error"
)

// TestRun is the status record of a run as returned by GET /v1/run/{id}.
type TestRun struct {
	ID           string     `json:"id"`
	State        string     `json:"state"`
	Passed       *int       `json:"passed,omitempty"`
	Failed       *int       `json:"failed,omitempty"`
	Ignored      *int       `json:"ignored,omitempty"`
	Completed    *time.Time `json:"completed,omitempty"`
	TotalRunTime *float64   `json:"total_run_time,omitempty"` // seconds
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// IsTerminal reports whether the run has finished. The service sets
// completed exactly when the state is passed, failure or error.
func (r *TestRun) IsTerminal() bool {
	return r != nil && r.Completed != nil
}

// RunTime returns the billable run time, zero when the service omitted it.
func (r *TestRun) RunTime() time.Duration {
	if r == nil || r.TotalRunTime == nil {
		return 0
	}
	return time.Duration(*r.TotalRunTime * float64(time.Second))
}

// Artifact is a node in a run's artifact tree. Directories are only
// navigational; files can be downloaded by ID.
type Artifact struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsFile bool   `json:"is_file"`
}

// RunBundle pairs uploaded application and test application handles.
// Library bundles carry only the test application.
type RunBundle struct {
	TestAppPath string `json:"s3_test_app_path"`
	AppPath     string `json:"s3_app_path,omitempty"`
}

// CreateRunRequest is the JSON payload of POST /v2/run.
type CreateRunRequest struct {
	Platform                  string            `json:"platform"`
	TestAppPath               string            `json:"s3_test_app_path,omitempty"`
	AppPath                   string            `json:"s3_app_path,omitempty"`
	Bundles                   []RunBundle       `json:"bundles,omitempty"`
	Name                      string            `json:"name,omitempty"`
	Link                      string            `json:"link,omitempty"`
	Branch                    string            `json:"branch,omitempty"`
	Project                   string            `json:"project,omitempty"`
	OSVersion                 string            `json:"os_version,omitempty"`
	SystemImage               string            `json:"system_image,omitempty"`
	Device                    string            `json:"device,omitempty"`
	XcodeVersion              string            `json:"xcode_version,omitempty"`
	Flavor                    string            `json:"flavor,omitempty"`
	Isolated                  *bool             `json:"isolated,omitempty"`
	CodeCoverage              *bool             `json:"code_coverage,omitempty"`
	AnalyticsReadOnly         *bool             `json:"analytics_read_only,omitempty"`
	Profiling                 *bool             `json:"profiling,omitempty"`
	ConcurrencyLimit          *int              `json:"concurrency_limit,omitempty"`
	RetryQuotaTestUncompleted *int              `json:"retry_quota_test_uncompleted,omitempty"`
	RetryQuotaTestPreventive  *int              `json:"retry_quota_test_preventive,omitempty"`
	RetryQuotaTestReactive    *int              `json:"retry_quota_test_reactive,omitempty"`
	TestTimeoutDefault        *int              `json:"test_timeout_default,omitempty"`
	TestTimeoutMax            *int              `json:"test_timeout_max,omitempty"`
	FilteringConfiguration    string            `json:"filtering_configuration,omitempty"`
	PullFileConfig            string            `json:"pull_file_config,omitempty"`
	GrantedPermission         []string          `json:"granted_permission,omitempty"`
	EnvArgs                   map[string]string `json:"env_args,omitempty"`
	TestEnvArgs               map[string]string `json:"test_env_args,omitempty"`
}

type createRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type uploadURLRequest struct {
	Filename string `json:"filename"`
}

type uploadURLResponse struct {
	FilePath string `json:"file_path"`
	URL      string `json:"url"`
}

type uploadResponse struct {
	FilePath string `json:"file_path"`
}

// Device is an entry of the device catalog.
type Device struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Manufacturer string `json:"manufacturer" yaml:"manufacturer"`
	Width        int    `json:"width" yaml:"width"`
	Height       int    `json:"height" yaml:"height"`
	DPI          int    `json:"dpi" yaml:"dpi"`
}

// escapePath escapes each segment of a slash separated artifact ID.
func escapePath(id string) string {
	parts := strings.Split(id, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
