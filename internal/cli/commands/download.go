package commands

import (
	"github.com/marathonlabs/marathon-cloud/internal/engine"
	"github.com/spf13/cobra"
)

// DownloadOptions holds flags of the download command.
type DownloadOptions struct {
	ID         string
	Output     string
	Wait       bool
	Glob       string
	ResultFile string
}

// NewDownloadCommand creates the download command.
func NewDownloadCommand() *cobra.Command {
	opts := &DownloadOptions{}

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download artifacts from a previous test run",
		Example: `  # Download everything
  marathon-cloud download --id 0f2c4d1e -o out

  # Download only JUnit reports
  marathon-cloud download --id 0f2c4d1e -o out --glob 'tests/**'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDownload(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "Test run id")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output folder for test run results")
	cmd.Flags().BoolVar(&opts.Wait, "wait", true, "Wait for test run to finish if true, download immediately if false")
	cmd.Flags().StringVar(&opts.Glob, "glob", "", "Only download files matching this glob, for example 'tests/**'")
	cmd.Flags().StringVar(&opts.ResultFile, "result-file", "", "Result file path in a machine-readable format (.json, .yaml or .yml)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runDownload(cmd *cobra.Command, opts *DownloadOptions) error {
	cc := NewCommandContext(cmd)
	client, err := cc.NewClient()
	if err != nil {
		return err
	}
	eng, cleanup, err := cc.NewEngine(client)
	if err != nil {
		return err
	}

	out, err := eng.Download(cmd.Context(), opts.ID, engine.DownloadOptions{
		Wait:   opts.Wait,
		Output: opts.Output,
		Glob:   opts.Glob,
	})
	cleanup()
	if err != nil {
		return err
	}
	return cc.report(out, opts.ResultFile)
}
