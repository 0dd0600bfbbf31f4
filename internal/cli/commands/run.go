package commands

import (
	"fmt"
	"slices"

	"github.com/marathonlabs/marathon-cloud/internal/api"
	"github.com/marathonlabs/marathon-cloud/internal/bundle"
	"github.com/marathonlabs/marathon-cloud/internal/engine"
	"github.com/marathonlabs/marathon-cloud/internal/filtering"
	"github.com/marathonlabs/marathon-cloud/internal/result"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Platform names sent to the service.
const (
	PlatformAndroid = "Android"
	PlatformIOS     = "iOS"
)

// RunOptions holds the flags shared by every run subcommand.
type RunOptions struct {
	Output             string
	Wait               bool
	IgnoreTestFailures bool
	ResultFile         string
	FilterFile         string

	Name    string
	Link    string
	Branch  string
	Project string

	Isolated          bool
	CodeCoverage      bool
	AnalyticsReadOnly bool
	Profiling         bool
	ConcurrencyLimit  int

	RetryUncompleted int
	RetryPreventive  int
	RetryReactive    int
	NoRetries        bool
}

// NewRunCommand creates the run command and its platform subcommands.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a test run",
		Long: `Upload application bundles, submit a test run and, unless --wait=false,
wait for it to finish and download its artifacts.`,
	}
	cmd.AddCommand(newAndroidCommand())
	cmd.AddCommand(newIOSCommand())
	return cmd
}

func (o *RunOptions) register(flags *pflag.FlagSet) {
	flags.StringVarP(&o.Output, "output", "o", "", "Output folder for test run results")
	flags.BoolVar(&o.Wait, "wait", true, "Wait for test run to finish if true, exits after triggering a run if false")
	flags.BoolVar(&o.IgnoreTestFailures, "ignore-test-failures", false, "Exit with code 0 even if tests fail")
	flags.StringVar(&o.ResultFile, "result-file", "", "Result file path in a machine-readable format (.json, .yaml or .yml)")
	flags.StringVar(&o.FilterFile, "filter-file", "", "Test filters supplied as a YAML file")

	flags.StringVar(&o.Name, "name", "", "Name for run, for example a commit description")
	flags.StringVar(&o.Link, "link", "", "Link for run, for example a CI job URL")
	flags.StringVar(&o.Branch, "branch", "", "Branch for run, for example develop")
	flags.StringVar(&o.Project, "project", "", "The unique identifier (slug) for the project")

	flags.BoolVar(&o.Isolated, "isolated", false, "Run each test in isolation")
	flags.BoolVar(&o.CodeCoverage, "code-coverage", false, "Collect code coverage")
	flags.BoolVar(&o.AnalyticsReadOnly, "analytics-read-only", false, "Do not let this run affect statistical measurements")
	flags.BoolVar(&o.Profiling, "profiling", false, "Collect profiling data for tests")
	flags.IntVar(&o.ConcurrencyLimit, "concurrency-limit", 0, "Limit maximum number of concurrent devices")

	flags.IntVar(&o.RetryUncompleted, "retry-quota-test-uncompleted", 0, "Number of allowed uncompleted executions per test")
	flags.IntVar(&o.RetryPreventive, "retry-quota-test-preventive", 0, "Number of allowed preventive retries per test")
	flags.IntVar(&o.RetryReactive, "retry-quota-test-reactive", 0, "Number of allowed reactive retries per test")
	flags.BoolVar(&o.NoRetries, "no-retries", false, "Disable all retries")
}

// markRunFlags declares flag relations shared by the run subcommands.
func markRunFlags(cmd *cobra.Command) {
	for _, quota := range []string{"retry-quota-test-uncompleted", "retry-quota-test-preventive", "retry-quota-test-reactive"} {
		cmd.MarkFlagsMutuallyExclusive("no-retries", quota)
	}
}

// params builds the request fields common to both platforms. Optional
// fields are set only when their flag was given.
func (o *RunOptions) params(flags *pflag.FlagSet, platform string) (api.CreateRunRequest, error) {
	if o.ResultFile != "" {
		if err := result.ValidateFilePath(o.ResultFile); err != nil {
			return api.CreateRunRequest{}, err
		}
	}
	if err := positive(flags, "concurrency-limit", o.ConcurrencyLimit); err != nil {
		return api.CreateRunRequest{}, err
	}
	req := api.CreateRunRequest{
		Platform:          platform,
		Name:              o.Name,
		Link:              o.Link,
		Branch:            o.Branch,
		Project:           o.Project,
		Isolated:          optBool(flags, "isolated", o.Isolated),
		CodeCoverage:      optBool(flags, "code-coverage", o.CodeCoverage),
		AnalyticsReadOnly: optBool(flags, "analytics-read-only", o.AnalyticsReadOnly),
		Profiling:         optBool(flags, "profiling", o.Profiling),
		ConcurrencyLimit:  optInt(flags, "concurrency-limit", o.ConcurrencyLimit),
	}
	if o.NoRetries {
		zero := 0
		req.RetryQuotaTestUncompleted = &zero
		req.RetryQuotaTestPreventive = &zero
		req.RetryQuotaTestReactive = &zero
	} else {
		req.RetryQuotaTestUncompleted = optInt(flags, "retry-quota-test-uncompleted", o.RetryUncompleted)
		req.RetryQuotaTestPreventive = optInt(flags, "retry-quota-test-preventive", o.RetryPreventive)
		req.RetryQuotaTestReactive = optInt(flags, "retry-quota-test-reactive", o.RetryReactive)
	}
	if o.FilterFile != "" {
		filters, err := filtering.Convert(o.FilterFile)
		if err != nil {
			return api.CreateRunRequest{}, err
		}
		req.FilteringConfiguration = filters
	}
	return req, nil
}

// execute submits req and reports the outcome.
func (o *RunOptions) execute(cmd *cobra.Command, files bundle.Set, params api.CreateRunRequest) error {
	cc := NewCommandContext(cmd)
	client, err := cc.NewClient()
	if err != nil {
		return err
	}
	eng, cleanup, err := cc.NewEngine(client)
	if err != nil {
		return err
	}

	out, err := eng.Run(cmd.Context(), engine.RunRequest{Files: files, Params: params}, engine.RunOptions{
		Wait:               o.Wait,
		Output:             o.Output,
		IgnoreTestFailures: o.IgnoreTestFailures,
	})
	cleanup()
	if err != nil {
		return err
	}
	return cc.report(out, o.ResultFile)
}

func optBool(flags *pflag.FlagSet, name string, v bool) *bool {
	if !flags.Changed(name) {
		return nil
	}
	return &v
}

func optInt(flags *pflag.FlagSet, name string, v int) *int {
	if !flags.Changed(name) {
		return nil
	}
	return &v
}

// positive rejects a flag that was given with a non-positive value.
func positive(flags *pflag.FlagSet, name string, v int) error {
	if flags.Changed(name) && v <= 0 {
		return fmt.Errorf("--%s must be positive, got %d", name, v)
	}
	return nil
}

func oneOf(flag, value string, allowed ...string) error {
	if value == "" || slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("invalid --%s %q: expected one of %v", flag, value, allowed)
}
