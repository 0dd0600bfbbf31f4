package commands

import (
	"errors"

	"github.com/marathonlabs/marathon-cloud/internal/bundle"
	"github.com/spf13/cobra"
)

// Accepted values of the Android enum flags.
var (
	androidOSVersions   = []string{"10", "11", "12", "13", "14"}
	androidSystemImages = []string{"default", "google_apis"}
	androidFlavors      = []string{"native", "js-jest-appium", "python-robotframework-appium"}
)

// AndroidOptions holds flags of the run android command.
type AndroidOptions struct {
	RunOptions

	Application        string
	TestApplication    string
	ApplicationBundles []string
	LibraryBundles     []string

	OSVersion   string
	SystemImage string
	Device      string
	Flavor      string

	InstrumentationArgs []string
	PullFiles           []string
}

func newAndroidCommand() *cobra.Command {
	opts := &AndroidOptions{}

	cmd := &cobra.Command{
		Use:   "android",
		Short: "Run tests for Android",
		Example: `  # Run instrumentation tests and download artifacts
  marathon-cloud run android -a app.apk -t app-androidTest.apk -o out

  # Run several application bundles without waiting
  marathon-cloud run android --wait=false \
    --application-bundle f1.apk,f1-test.apk --application-bundle f2.apk,f2-test.apk`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAndroid(cmd, opts)
		},
	}

	f := cmd.Flags()
	opts.register(f)
	f.StringVarP(&opts.Application, "application", "a", "", "Application filepath, example: /home/user/workspace/sample.apk")
	f.StringVarP(&opts.TestApplication, "test-application", "t", "", "Test application filepath, example: /home/user/workspace/testSample.apk")
	f.StringArrayVar(&opts.ApplicationBundles, "application-bundle", nil, "Application bundle '<app_apk_path>,<test_apk_path>', repeatable")
	f.StringArrayVar(&opts.LibraryBundles, "library-bundle", nil, "Library test apk path, repeatable")
	f.StringVar(&opts.OSVersion, "os-version", "", "OS version (10, 11, 12, 13, 14)")
	f.StringVar(&opts.SystemImage, "system-image", "", "Runtime system image (default, google_apis)")
	f.StringVar(&opts.Device, "device", "", "Device type id, see `marathon-cloud devices android`")
	f.StringVar(&opts.Flavor, "flavor", "", "Test flavor (native, js-jest-appium, python-robotframework-appium)")
	f.StringArrayVar(&opts.InstrumentationArgs, "instrumentation-arg", nil, "Instrumentation argument KEY=VALUE, repeatable")
	f.StringArrayVar(&opts.PullFiles, "pull-files", nil, "Pull files from devices after the run, ROOT:PATH with ROOT one of EXTERNAL_STORAGE, APP_DATA")

	markRunFlags(cmd)
	cmd.MarkFlagsMutuallyExclusive("application-bundle", "application")
	cmd.MarkFlagsMutuallyExclusive("application-bundle", "test-application")
	cmd.MarkFlagsMutuallyExclusive("library-bundle", "application")
	cmd.MarkFlagsMutuallyExclusive("library-bundle", "test-application")

	_ = cmd.RegisterFlagCompletionFunc("os-version", fixedCompletion(androidOSVersions))
	_ = cmd.RegisterFlagCompletionFunc("system-image", fixedCompletion(androidSystemImages))
	_ = cmd.RegisterFlagCompletionFunc("flavor", fixedCompletion(androidFlavors))

	return cmd
}

func runAndroid(cmd *cobra.Command, opts *AndroidOptions) error {
	files, err := opts.files()
	if err != nil {
		return err
	}
	if err := opts.validate(); err != nil {
		return err
	}

	params, err := opts.params(cmd.Flags(), PlatformAndroid)
	if err != nil {
		return err
	}
	params.OSVersion = opts.OSVersion
	params.SystemImage = opts.SystemImage
	params.Device = opts.Device
	params.Flavor = opts.Flavor
	if params.EnvArgs, err = parseEnvArgs("instrumentation-arg", opts.InstrumentationArgs); err != nil {
		return err
	}
	if params.PullFileConfig, err = parsePullFiles(opts.PullFiles); err != nil {
		return err
	}

	return opts.execute(cmd, files, params)
}

// files assembles the upload set from either the single app pair or the
// bundle flags.
func (o *AndroidOptions) files() (bundle.Set, error) {
	if len(o.ApplicationBundles) > 0 || len(o.LibraryBundles) > 0 {
		bundles, err := bundle.ParseBundles(o.ApplicationBundles)
		if err != nil {
			return bundle.Set{}, err
		}
		return bundle.Set{Bundles: bundles, Libraries: o.LibraryBundles}, nil
	}
	if o.TestApplication == "" {
		return bundle.Set{}, errors.New("--test-application is required unless --application-bundle or --library-bundle is used")
	}
	return bundle.Set{Application: o.Application, TestApplication: o.TestApplication}, nil
}

// validate rejects device configurations the service cannot run.
func (o *AndroidOptions) validate() error {
	if err := oneOf("os-version", o.OSVersion, androidOSVersions...); err != nil {
		return err
	}
	if err := oneOf("system-image", o.SystemImage, androidSystemImages...); err != nil {
		return err
	}
	if err := oneOf("flavor", o.Flavor, androidFlavors...); err != nil {
		return err
	}

	switch o.Device {
	case "watch":
		if o.SystemImage != "google_apis" || (o.OSVersion != "" && o.OSVersion != "11" && o.OSVersion != "13") {
			return errors.New("android watch only supports the google_apis system image and os versions 11 and 13")
		}
	case "tv":
		if o.SystemImage == "default" {
			return errors.New("android tv only supports the google_apis system image")
		}
	}
	if (o.Device == "watch" || o.Device == "tv") && o.Flavor != "" && o.Flavor != "native" {
		return errors.New("js-jest-appium and python-robotframework-appium only support phone devices")
	}
	return nil
}

func fixedCompletion(values []string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}
