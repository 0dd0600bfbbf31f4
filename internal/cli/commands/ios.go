package commands

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/marathonlabs/marathon-cloud/internal/bundle"
	"github.com/spf13/cobra"
)

// DefaultTestTimeout is the per-test timeout in seconds sent for iOS runs.
const DefaultTestTimeout = 300

type iosConfig struct {
	device    string
	osVersion string
}

// iosConfigs lists the supported device and runtime pairs.
var iosConfigs = []iosConfig{
	{"iPhone-15", "17.5"},
	{"iPhone-15-Pro", "17.5"},
	{"iPhone-15-Pro-Max", "17.5"},
	{"iPhone-11", "17.5"},
	{"iPhone-16", "18.2"},
	{"iPhone-16-Pro", "18.2"},
	{"iPhone-16-Pro-Max", "18.2"},
	{"iPhone-16-Plus", "18.2"},
	{"iPhone-11", "18.2"},
	{"iPhone-16", "18.4"},
	{"iPhone-16-Pro", "18.4"},
	{"iPhone-16-Pro-Max", "18.4"},
	{"iPhone-16-Plus", "18.4"},
	{"iPhone-11", "18.4"},
	{"iPhone-16-Pro", "26.1"},
}

var iosPermissions = []string{
	"calendar", "contacts-limited", "contacts", "location", "location-always",
	"photos-add", "photos", "media-library", "microphone", "motion", "reminders", "siri",
}

// IOSOptions holds flags of the run ios command.
type IOSOptions struct {
	RunOptions

	Application     string
	TestApplication string

	OSVersion    string
	Device       string
	XcodeVersion string

	XctestrunEnv       []string
	XctestrunTestEnv   []string
	TestTimeoutDefault int
	TestTimeoutMax     int
	GrantedPermissions []string
}

func newIOSCommand() *cobra.Command {
	opts := &IOSOptions{}

	cmd := &cobra.Command{
		Use:   "ios",
		Short: "Run tests for iOS",
		Example: `  # Run XCUITests on the default device
  marathon-cloud run ios -a sample.zip -t sampleUITests-Runner.zip -o out

  # Pick a device and grant permissions
  marathon-cloud run ios -a sample.zip -t runner.zip --device iPhone-16 --os-version 18.4 \
    --granted-permission location --granted-permission photos`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIOS(cmd, opts)
		},
	}

	f := cmd.Flags()
	opts.register(f)
	f.StringVarP(&opts.Application, "application", "a", "", "Application filepath, example: /home/user/workspace/sample.zip")
	f.StringVarP(&opts.TestApplication, "test-application", "t", "", "Test application filepath, example: /home/user/workspace/sampleUITests-Runner.zip")
	f.StringVar(&opts.OSVersion, "os-version", "", "iOS runtime version")
	f.StringVar(&opts.Device, "device", "", "Device type, for example iPhone-16")
	f.StringVar(&opts.XcodeVersion, "xcode-version", "", "Xcode version")
	f.StringArrayVar(&opts.XctestrunEnv, "xctestrun-env", nil, "xctestrun environment variable KEY=VALUE, repeatable")
	f.StringArrayVar(&opts.XctestrunTestEnv, "xctestrun-test-env", nil, "xctestrun testing environment variable KEY=VALUE, repeatable")
	f.IntVar(&opts.TestTimeoutDefault, "test-timeout-default", DefaultTestTimeout, "Default timeout for each test in seconds")
	f.IntVar(&opts.TestTimeoutMax, "test-timeout-max", 0, "Maximum test timeout in seconds, overriding all other timeout settings")
	f.StringArrayVar(&opts.GrantedPermissions, "granted-permission", nil, "Grant permission to the application before each batch, repeatable")

	_ = cmd.MarkFlagRequired("application")
	_ = cmd.MarkFlagRequired("test-application")
	_ = f.MarkDeprecated("xcode-version", "the service selects Xcode from --os-version")
	markRunFlags(cmd)

	_ = cmd.RegisterFlagCompletionFunc("granted-permission", fixedCompletion(iosPermissions))

	return cmd
}

func runIOS(cmd *cobra.Command, opts *IOSOptions) error {
	device, osVersion, err := inferIOSConfig(opts.Device, opts.OSVersion)
	if err != nil {
		return err
	}
	if opts.Application == opts.TestApplication {
		return errors.New("--application and --test-application must be different files")
	}
	if err := opts.validate(cmd); err != nil {
		return err
	}

	params, err := opts.params(cmd.Flags(), PlatformIOS)
	if err != nil {
		return err
	}
	params.Device = device
	params.OSVersion = osVersion
	params.XcodeVersion = opts.XcodeVersion
	params.TestTimeoutDefault = &opts.TestTimeoutDefault
	params.TestTimeoutMax = optInt(cmd.Flags(), "test-timeout-max", opts.TestTimeoutMax)
	params.GrantedPermission = opts.GrantedPermissions
	if params.EnvArgs, err = parseEnvArgs("xctestrun-env", opts.XctestrunEnv); err != nil {
		return err
	}
	if params.TestEnvArgs, err = parseEnvArgs("xctestrun-test-env", opts.XctestrunTestEnv); err != nil {
		return err
	}

	files := bundle.Set{Application: opts.Application, TestApplication: opts.TestApplication}
	return opts.execute(cmd, files, params)
}

func (o *IOSOptions) validate(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if err := positive(flags, "test-timeout-default", o.TestTimeoutDefault); err != nil {
		return err
	}
	if err := positive(flags, "test-timeout-max", o.TestTimeoutMax); err != nil {
		return err
	}
	var invalid []string
	for _, p := range o.GrantedPermissions {
		if !slices.Contains(iosPermissions, p) {
			invalid = append(invalid, p)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("unsupported --granted-permission %s: expected one of %s",
			strings.Join(invalid, ", "), strings.Join(iosPermissions, ", "))
	}
	return nil
}

// inferIOSConfig completes a partial device and runtime selection. Both
// empty leaves the choice to the service. A selection matching more than
// one supported pair is ambiguous.
func inferIOSConfig(device, osVersion string) (string, string, error) {
	if device == "" && osVersion == "" {
		return "", "", nil
	}
	var matches []iosConfig
	for _, c := range iosConfigs {
		if (device == "" || c.device == device) && (osVersion == "" || c.osVersion == osVersion) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return "", "", fmt.Errorf("unsupported iOS configuration --device %q --os-version %q\n%s", device, osVersion, supportedIOSConfigs())
	case 1:
		return matches[0].device, matches[0].osVersion, nil
	default:
		return "", "", fmt.Errorf("ambiguous iOS configuration --device %q --os-version %q, set both\n%s", device, osVersion, supportedIOSConfigs())
	}
}

func supportedIOSConfigs() string {
	var b strings.Builder
	b.WriteString("Supported combinations:")
	for _, c := range iosConfigs {
		fmt.Fprintf(&b, "\n  --os-version %s --device %s", c.osVersion, c.device)
	}
	return b.String()
}
