package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spboyer/dea/internal/dataset"
	"github.com/spboyer/dea/internal/projectconfig"
	"github.com/spboyer/dea/internal/wizard"
)

type initOptions struct {
	interactive bool
	example     bool
	force       bool
	dataFile    string
	inputs      []string
	outputs     []string
	delimiter   string
	rows        int
}

func newInitCommand() *cobra.Command {
	var opts initOptions
	defaults := wizard.DefaultSpec()

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new DEA project",
		Long: `Initialize a new DEA project.

Writes a .dea.yaml configuration file and a data file with the header row
and placeholder DMUs, ready to be filled in from a spreadsheet. Every
placeholder value is 1, so the generated project runs as-is.

Use --interactive to pick metric names and the delimiter with a guided form,
or --example to start from the six-DMU sample table.

Existing files are never overwritten unless --force is given.

If no directory is specified, the current directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return initCommandE(cmd, args, &opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Run the guided project wizard")
	cmd.Flags().BoolVar(&opts.example, "example", false, "Write the sample table instead of a template")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite existing files")
	cmd.Flags().StringVar(&opts.dataFile, "data-file", defaults.DataFile, "Name of the data file to create")
	cmd.Flags().StringSliceVar(&opts.inputs, "inputs", defaults.Inputs, "Input metric names")
	cmd.Flags().StringSliceVar(&opts.outputs, "outputs", defaults.Outputs, "Output metric names")
	cmd.Flags().StringVar(&opts.delimiter, "delimiter", string(defaults.Delimiter), "Cell delimiter: tab, comma, semicolon")
	cmd.Flags().IntVar(&opts.rows, "rows", defaults.DMUs, "Number of placeholder DMUs")
	cmd.MarkFlagsMutuallyExclusive("interactive", "example")

	return cmd
}

func initCommandE(cmd *cobra.Command, args []string, opts *initOptions) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	spec := &wizard.ProjectSpec{
		DataFile:  opts.dataFile,
		Inputs:    opts.inputs,
		Outputs:   opts.outputs,
		Delimiter: wizard.Delimiter(opts.delimiter),
		DMUs:      opts.rows,
	}

	if opts.interactive {
		var err error
		spec, err = wizard.RunProjectWizard(cmd.InOrStdin(), cmd.OutOrStdout(), spec)
		if err != nil {
			return fmt.Errorf("wizard failed: %w", err)
		}
	}

	var content string
	if opts.example {
		content = dataset.ExampleData
	} else {
		var err error
		content, err = wizard.GenerateDataTemplate(spec)
		if err != nil {
			return err
		}
	}

	cfg := projectconfig.New()
	cfg.Data = spec.DataFile
	cfgData, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", projectconfig.FileName, err)
	}

	files := []struct {
		path    string
		content []byte
	}{
		{filepath.Join(dir, projectconfig.FileName), cfgData},
		{filepath.Join(dir, spec.DataFile), []byte(content)},
	}

	if !opts.force {
		for _, f := range files {
			if _, err := os.Stat(f.path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", f.path)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("checking %s: %w", f.path, err)
			}
		}
	}

	// Create the root directory if it doesn't exist
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized DEA project in %s\n", dir) //nolint:errcheck
	for _, f := range files {
		if parent := filepath.Dir(f.path); parent != dir {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", parent, err)
			}
		}
		if err := os.WriteFile(f.path, f.content, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.path, err)
		}
		fmt.Fprintf(out, "  %s\n", f.path) //nolint:errcheck
	}

	fmt.Fprintf(out, "\nNext: fill in %s and run `dea run`\n", spec.DataFile) //nolint:errcheck
	return nil
}
