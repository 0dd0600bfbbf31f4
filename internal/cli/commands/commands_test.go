package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marathonlabs/marathon-cloud/internal/api"
	"github.com/marathonlabs/marathon-cloud/internal/artifacts"
	"github.com/marathonlabs/marathon-cloud/internal/cli/config"
	"github.com/marathonlabs/marathon-cloud/internal/cli/output"
	"github.com/marathonlabs/marathon-cloud/internal/cli/testutil"
	"github.com/marathonlabs/marathon-cloud/internal/engine"
	"github.com/marathonlabs/marathon-cloud/internal/result"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService serves the endpoints used by the commands.
type fakeService struct {
	srv   *httptest.Server
	state string

	mu        sync.Mutex
	submitted api.CreateRunRequest
	uploaded  []string
}

func newFakeService(t *testing.T, state string) *fakeService {
	t.Helper()
	fs := &fakeService{state: state}
	r := chi.NewRouter()
	r.Get("/v1/user/jwt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"token":"jwt"}`))
	})
	r.Post("/v2/upload/presigned-url", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Filename string `json:"filename"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"file_path": "uploads/" + body.Filename,
			"url":       fs.srv.URL + "/s3/" + body.Filename,
		})
	})
	r.Put("/s3/{name}", func(_ http.ResponseWriter, req *http.Request) {
		_, _ = io.Copy(io.Discard, req.Body)
		fs.mu.Lock()
		fs.uploaded = append(fs.uploaded, chi.URLParam(req, "name"))
		fs.mu.Unlock()
	})
	r.Post("/v2/run", func(w http.ResponseWriter, req *http.Request) {
		fs.mu.Lock()
		_ = json.NewDecoder(req.Body).Decode(&fs.submitted)
		fs.mu.Unlock()
		_, _ = w.Write([]byte(`{"run_id":"R7","status":"queued"}`))
	})
	r.Get("/v1/run/{id}", func(w http.ResponseWriter, _ *http.Request) {
		run := map[string]any{"id": "R7", "state": fs.state}
		if fs.state != api.StateRunning {
			run["passed"], run["failed"], run["ignored"] = 3, 1, 0
			run["completed"] = "2024-05-01T10:00:00Z"
			run["total_run_time"] = 61.5
		}
		_ = json.NewEncoder(w).Encode(run)
	})
	r.Get("/v1/artifact/*", func(w http.ResponseWriter, req *http.Request) {
		switch chi.URLParam(req, "*") {
		case "R7":
			_, _ = w.Write([]byte(`[{"id":"R7/tests","name":"tests","is_file":false},
				{"id":"R7/logs.txt","name":"logs.txt","is_file":true}]`))
		case "R7/tests":
			_, _ = w.Write([]byte(`[{"id":"R7/tests/junit.xml","name":"junit.xml","is_file":true}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	})
	r.Get("/v1/artifact", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("content of " + req.URL.Query().Get("key")))
	})
	r.Get("/v1/devices/android", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"pixel-6","name":"Pixel 6","manufacturer":"Google","width":1080,"height":2400,"dpi":411}]`))
	})
	fs.srv = httptest.NewServer(r)
	t.Cleanup(fs.srv.Close)
	return fs
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.APIKey = "key"
	cfg.BaseURL = baseURL
	cfg.Format = "json"
	cfg.PollInterval = time.Millisecond
	cfg.Concurrency = 2
	return cfg
}

// execute runs args against a root carrying cfg and returns stdout.
func execute(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "marathon-cloud", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(NewRunCommand(), NewDownloadCommand(), NewDevicesCommand(), NewVersionCommand("test"))

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(config.WithConfig(context.Background(), cfg))
	return out.String(), err
}

func writeApk(t *testing.T, dir, name string) string {
	t.Helper()
	return testutil.WriteFile(t, dir, name, "apk:"+name)
}

func TestParseEnvArgs(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		want    map[string]string
		wantErr string
	}{
		{name: "none", values: nil, want: nil},
		{name: "pairs", values: []string{"FOO=BAR", "URL=http://x?a=b"}, want: map[string]string{"FOO": "BAR", "URL": "http://x?a=b"}},
		{name: "later wins", values: []string{"A=1", "A=2"}, want: map[string]string{"A": "2"}},
		{name: "missing separator", values: []string{"FOO"}, wantErr: "expected KEY=VALUE"},
		{name: "missing value", values: []string{"FOO="}, wantErr: "missing value"},
		{name: "missing key", values: []string{"=BAR"}, wantErr: "expected KEY=VALUE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEnvArgs("instrumentation-arg", tt.values)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Contains(t, err.Error(), "--instrumentation-arg")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePullFiles(t *testing.T) {
	got, err := parsePullFiles([]string{"EXTERNAL_STORAGE:Documents/results", "APP_DATA:files/a.txt"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"pull":[
		{"relativePath":"Documents/results","aggregationMode":"TEST_RUN","pathRoot":"EXTERNAL_STORAGE"},
		{"relativePath":"files/a.txt","aggregationMode":"TEST_RUN","pathRoot":"APP_DATA"}]}`, got)

	got, err = parsePullFiles(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, bad := range []string{"Documents", "SDCARD:Documents", "APP_DATA:a:b", "APP_DATA:"} {
		_, err := parsePullFiles([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestInferIOSConfig(t *testing.T) {
	tests := []struct {
		name       string
		device, os string
		wantDevice string
		wantOS     string
		wantErr    string
	}{
		{name: "service default"},
		{name: "complete pair", device: "iPhone-16", os: "18.4", wantDevice: "iPhone-16", wantOS: "18.4"},
		{name: "os implies device", os: "26.1", wantDevice: "iPhone-16-Pro", wantOS: "26.1"},
		{name: "device with several runtimes", device: "iPhone-16-Plus", wantErr: "ambiguous"},
		{name: "unknown pair", device: "iPhone-15", os: "18.4", wantErr: "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, osVersion, err := inferIOSConfig(tt.device, tt.os)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Contains(t, err.Error(), "--os-version 17.5 --device iPhone-15")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDevice, device)
			assert.Equal(t, tt.wantOS, osVersion)
		})
	}
}

func TestAndroidOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    AndroidOptions
		wantErr string
	}{
		{name: "phone defaults", opts: AndroidOptions{}},
		{name: "watch with google apis", opts: AndroidOptions{Device: "watch", SystemImage: "google_apis", OSVersion: "13"}},
		{name: "watch default image", opts: AndroidOptions{Device: "watch"}, wantErr: "watch"},
		{name: "watch unsupported os", opts: AndroidOptions{Device: "watch", SystemImage: "google_apis", OSVersion: "12"}, wantErr: "watch"},
		{name: "tv default image", opts: AndroidOptions{Device: "tv", SystemImage: "default"}, wantErr: "tv"},
		{name: "tv appium", opts: AndroidOptions{Device: "tv", Flavor: "js-jest-appium"}, wantErr: "phone"},
		{name: "unknown flavor", opts: AndroidOptions{Flavor: "espresso"}, wantErr: "--flavor"},
		{name: "unknown os", opts: AndroidOptions{OSVersion: "9"}, wantErr: "--os-version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAndroidOptions_Files(t *testing.T) {
	set, err := (&AndroidOptions{Application: "a.apk", TestApplication: "t.apk"}).files()
	require.NoError(t, err)
	assert.Equal(t, "a.apk", set.Application)
	assert.Equal(t, "t.apk", set.TestApplication)

	set, err = (&AndroidOptions{
		ApplicationBundles: []string{"f1.apk,f1-test.apk"},
		LibraryBundles:     []string{"lib-test.apk"},
	}).files()
	require.NoError(t, err)
	require.Len(t, set.Bundles, 1)
	assert.Equal(t, "f1-test.apk", set.Bundles[0].TestApp)
	assert.Equal(t, []string{"lib-test.apk"}, set.Libraries)

	_, err = (&AndroidOptions{Application: "a.apk"}).files()
	assert.ErrorContains(t, err, "--test-application")

	_, err = (&AndroidOptions{ApplicationBundles: []string{"only-one.apk"}}).files()
	assert.Error(t, err)
}

func TestRunOptions_Params(t *testing.T) {
	parse := func(t *testing.T, args ...string) (*RunOptions, *cobra.Command) {
		t.Helper()
		opts := &RunOptions{}
		cmd := &cobra.Command{Use: "x"}
		opts.register(cmd.Flags())
		require.NoError(t, cmd.Flags().Parse(args))
		return opts, cmd
	}

	t.Run("unset optionals stay nil", func(t *testing.T) {
		opts, cmd := parse(t, "--name", "nightly")
		req, err := opts.params(cmd.Flags(), PlatformAndroid)
		require.NoError(t, err)
		assert.Equal(t, "Android", req.Platform)
		assert.Equal(t, "nightly", req.Name)
		assert.Nil(t, req.Isolated)
		assert.Nil(t, req.ConcurrencyLimit)
		assert.Nil(t, req.RetryQuotaTestReactive)
	})

	t.Run("explicit false is sent", func(t *testing.T) {
		opts, cmd := parse(t, "--isolated=false", "--profiling", "--retry-quota-test-reactive", "2")
		req, err := opts.params(cmd.Flags(), PlatformIOS)
		require.NoError(t, err)
		require.NotNil(t, req.Isolated)
		assert.False(t, *req.Isolated)
		require.NotNil(t, req.Profiling)
		assert.True(t, *req.Profiling)
		require.NotNil(t, req.RetryQuotaTestReactive)
		assert.Equal(t, 2, *req.RetryQuotaTestReactive)
	})

	t.Run("no retries zeroes quotas", func(t *testing.T) {
		opts, cmd := parse(t, "--no-retries")
		req, err := opts.params(cmd.Flags(), PlatformAndroid)
		require.NoError(t, err)
		for _, q := range []*int{req.RetryQuotaTestUncompleted, req.RetryQuotaTestPreventive, req.RetryQuotaTestReactive} {
			require.NotNil(t, q)
			assert.Zero(t, *q)
		}
	})

	t.Run("bad result file extension", func(t *testing.T) {
		opts, cmd := parse(t, "--result-file", "out.txt")
		_, err := opts.params(cmd.Flags(), PlatformAndroid)
		assert.ErrorContains(t, err, ".txt")
	})

	t.Run("zero concurrency limit", func(t *testing.T) {
		opts, cmd := parse(t, "--concurrency-limit", "0")
		_, err := opts.params(cmd.Flags(), PlatformAndroid)
		assert.ErrorContains(t, err, "--concurrency-limit")
	})
}

func TestCommandTree(t *testing.T) {
	run := NewRunCommand()
	assert.Equal(t, "run", run.Use)

	names := map[string]*cobra.Command{}
	for _, c := range run.Commands() {
		names[c.Name()] = c
	}
	require.Contains(t, names, "android")
	require.Contains(t, names, "ios")

	for _, flag := range []string{"application-bundle", "library-bundle", "instrumentation-arg", "pull-files", "flavor", "no-retries", "wait", "output"} {
		assert.NotNil(t, names["android"].Flags().Lookup(flag), "android flag %q", flag)
	}
	for _, flag := range []string{"xctestrun-env", "xctestrun-test-env", "granted-permission", "test-timeout-default", "xcode-version"} {
		assert.NotNil(t, names["ios"].Flags().Lookup(flag), "ios flag %q", flag)
	}

	download := NewDownloadCommand()
	for _, flag := range []string{"id", "output", "wait", "glob"} {
		assert.NotNil(t, download.Flags().Lookup(flag), "download flag %q", flag)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, config.Default(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "marathon-cloud vtest")
}

func TestRunAndroid_NoWait(t *testing.T) {
	fs := newFakeService(t, api.StatePassed)
	dir := t.TempDir()

	out, err := execute(t, testConfig(fs.srv.URL), "run", "android",
		"-a", writeApk(t, dir, "app.apk"), "-t", writeApk(t, dir, "test.apk"),
		"--wait=false", "--no-retries", "--name", "nightly",
		"--instrumentation-arg", "DEBUG=true",
		"--pull-files", "APP_DATA:files/out")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"R7"}`, out)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.ElementsMatch(t, []string{"app.apk", "test.apk"}, fs.uploaded)
	assert.Equal(t, PlatformAndroid, fs.submitted.Platform)
	assert.Equal(t, "uploads/app.apk", fs.submitted.AppPath)
	assert.Equal(t, "uploads/test.apk", fs.submitted.TestAppPath)
	assert.Equal(t, map[string]string{"DEBUG": "true"}, fs.submitted.EnvArgs)
	assert.Contains(t, fs.submitted.PullFileConfig, `"pathRoot":"APP_DATA"`)
	require.NotNil(t, fs.submitted.RetryQuotaTestUncompleted)
	assert.Zero(t, *fs.submitted.RetryQuotaTestUncompleted)
}

func TestRunAndroid_WaitOutcome(t *testing.T) {
	tests := []struct {
		name    string
		state   string
		extra   []string
		wantErr error
	}{
		{name: "passed", state: api.StatePassed},
		{name: "failure", state: api.StateFailure, wantErr: ErrTestRunFailed},
		{name: "failure ignored", state: api.StateFailure, extra: []string{"--ignore-test-failures"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeService(t, tt.state)
			dir := t.TempDir()
			resultFile := filepath.Join(dir, "result.json")
			outDir := filepath.Join(dir, "out")

			args := append([]string{"run", "android",
				"-t", writeApk(t, dir, "test.apk"),
				"-o", outDir, "--result-file", resultFile}, tt.extra...)
			out, err := execute(t, testConfig(fs.srv.URL), args...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			var printed map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &printed))
			assert.Equal(t, tt.state, printed["state"])
			assert.InDelta(t, 61.5, printed["billable_time"], 0.001)

			data, err := os.ReadFile(resultFile)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"id":"R7"`)

			junit, err := os.ReadFile(filepath.Join(outDir, "tests", "junit.xml"))
			require.NoError(t, err)
			assert.Equal(t, "content of R7/tests/junit.xml", string(junit))
		})
	}
}

func TestRunIOS_RejectsPermissions(t *testing.T) {
	fs := newFakeService(t, api.StatePassed)
	dir := t.TempDir()

	_, err := execute(t, testConfig(fs.srv.URL), "run", "ios",
		"-a", writeApk(t, dir, "app.zip"), "-t", writeApk(t, dir, "runner.zip"),
		"--granted-permission", "camera")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Empty(t, fs.uploaded)
}

func TestRunIOS_Submits(t *testing.T) {
	fs := newFakeService(t, api.StatePassed)
	dir := t.TempDir()

	_, err := execute(t, testConfig(fs.srv.URL), "run", "ios",
		"-a", writeApk(t, dir, "app.zip"), "-t", writeApk(t, dir, "runner.zip"),
		"--wait=false", "--os-version", "26.1", "--xctestrun-test-env", "LANG=en")
	require.NoError(t, err)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, PlatformIOS, fs.submitted.Platform)
	assert.Equal(t, "iPhone-16-Pro", fs.submitted.Device)
	assert.Equal(t, map[string]string{"LANG": "en"}, fs.submitted.TestEnvArgs)
	require.NotNil(t, fs.submitted.TestTimeoutDefault)
	assert.Equal(t, DefaultTestTimeout, *fs.submitted.TestTimeoutDefault)
	assert.Nil(t, fs.submitted.TestTimeoutMax)
}

func TestDownload_Glob(t *testing.T) {
	fs := newFakeService(t, api.StatePassed)
	outDir := t.TempDir()

	_, err := execute(t, testConfig(fs.srv.URL), "download", "--id", "R7", "-o", outDir, "--glob", "tests/**")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(outDir, "tests", "junit.xml"))
	assert.NoFileExists(t, filepath.Join(outDir, "logs.txt"))
}

func TestDownload_UnfinishedResultFile(t *testing.T) {
	fs := newFakeService(t, api.StateRunning)
	resultFile := filepath.Join(t.TempDir(), "result.json")

	_, err := execute(t, testConfig(fs.srv.URL), "download", "--id", "R7", "-o", t.TempDir(),
		"--wait=false", "--result-file", resultFile)
	require.NoError(t, err)

	data, err := os.ReadFile(resultFile)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"R7"}`, string(data))
}

func TestDevicesAndroid(t *testing.T) {
	fs := newFakeService(t, api.StatePassed)

	out, err := execute(t, testConfig(fs.srv.URL), "devices", "android")
	require.NoError(t, err)

	var devices []api.Device
	require.NoError(t, json.Unmarshal([]byte(out), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "pixel-6", devices[0].ID)
}

func TestMissingAPIKey(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.APIKey = ""

	_, err := execute(t, cfg, "devices", "android")
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
}

func TestCommandContext_Report(t *testing.T) {
	tr := testutil.NewTestRenderer(output.ModePlain, false)
	cc := &CommandContext{Cfg: config.Default(), Renderer: tr.Renderer}
	resultFile := filepath.Join(t.TempDir(), "result.yaml")

	err := cc.report(&engine.Outcome{
		RunID:   "R7",
		Result:  result.RunStarted{ID: "R7"},
		Success: true,
	}, resultFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"Test run R7 started"}, testutil.Lines(tr.Output()))
	testutil.AssertNoANSI(t, tr.Output())

	data, err := os.ReadFile(resultFile)
	require.NoError(t, err)
	assert.Equal(t, "id: R7\n", string(data))

	tr.Reset()
	failed := 2
	err = cc.report(&engine.Outcome{
		RunID:     "R7",
		Result:    result.RunFinished{ID: "R7", State: "failure", Failed: &failed},
		Downloads: &artifacts.Report{Total: 3, Succeeded: 3},
		Success:   false,
	}, "")
	assert.ErrorIs(t, err, ErrTestRunFailed)
	lines := testutil.Lines(tr.Output())
	require.NotEmpty(t, lines)
	assert.Equal(t, "Marathon Cloud execution finished with failures", lines[0])
	assert.Contains(t, lines, "failed: 2")
	assert.Contains(t, testutil.StripANSI(tr.Output()), "Downloaded 3 of 3 artifacts")
}
