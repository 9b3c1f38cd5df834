package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wudi/pdftools/observability"
	"github.com/wudi/pdftools/registry"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		outDir string
		params map[string]string
	)
	cmd := &cobra.Command{
		Use:   "run <tool> <file>...",
		Short: "Run one operation on local files",
		Example: `  pdftools run merge a.pdf b.pdf -o out
  pdftools run split report.pdf -p split_type=range -p pages=1-3,4-6 -o parts`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			logger, _, err := observability.NewLogger("warn", "console")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			reg, err := buildRegistry(cfg, logger)
			if err != nil {
				return err
			}
			spec, err := reg.Resolve(args[0])
			if err != nil {
				return fmt.Errorf("unknown tool %q, see 'pdftools tools'", args[0])
			}
			coerced, err := spec.Coerce(params)
			if err != nil {
				return err
			}
			for _, p := range args[1:] {
				if _, err := os.Stat(p); err != nil {
					return err
				}
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}

			in := registry.Input{Paths: args[1:], Params: coerced, Target: outDir}
			if spec.Arity == registry.Single {
				in.Target = filepath.Join(outDir, spec.OutputName)
			}
			out, err := spec.Run(cmd.Context(), in)
			if err != nil {
				return err
			}
			logger.Debug("operation finished", zap.String("tool", spec.ID), zap.Any("extra", out.Extra))

			w := cmd.OutOrStdout()
			if spec.Arity == registry.Multi {
				for _, f := range out.Files {
					fmt.Fprintln(w, filepath.Join(outDir, f))
				}
			} else {
				fmt.Fprintln(w, in.Target)
			}
			for k, v := range out.Extra {
				fmt.Fprintf(w, "%s: %v\n", k, v)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "tool parameter as name=value, repeatable")
	return cmd
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the available operations and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg, zap.NewNop())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tOUTPUT\tACCEPT\tPARAMS")
			for _, spec := range reg.Catalog() {
				names := make([]string, len(spec.Params))
				for i, p := range spec.Params {
					names[i] = fmt.Sprintf("%s=%v", p.Name, p.Default)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", spec.ID, spec.Arity, spec.Accept, strings.Join(names, " "))
			}
			return tw.Flush()
		},
	}
}
