package engine

import (
	"github.com/marathonlabs/marathon-cloud/internal/api"
	"github.com/marathonlabs/marathon-cloud/internal/artifacts"
	"github.com/marathonlabs/marathon-cloud/internal/result"
)

// Outcome is the result of a run or download workflow.
type Outcome struct {
	RunID string

	// Status is the terminal status; nil when the workflow did not wait.
	Status *api.TestRun

	// Downloads is nil when no output directory was requested.
	Downloads *artifacts.Report

	// Result is RunStarted when not waiting, otherwise RunFinished.
	Result result.Result

	Success bool
}

// Succeeded applies the exit rule: a failing run counts as failure unless
// test failures are ignored, and any artifact download failure always does.
func Succeeded(state string, ignoreTestFailures bool, downloads *artifacts.Report) bool {
	if state == api.StateFailure && !ignoreTestFailures {
		return false
	}
	if downloads != nil && !downloads.OK() {
		return false
	}
	return true
}

func finished(run *api.TestRun, reportURL string) result.RunFinished {
	return result.RunFinished{
		ID:           run.ID,
		Report:       reportURL,
		State:        run.State,
		Passed:       run.Passed,
		Failed:       run.Failed,
		Ignored:      run.Ignored,
		BillableTime: run.RunTime(),
	}
}
