package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wudi/pdftools/config"
	"github.com/wudi/pdftools/observability"
	"github.com/wudi/pdftools/ocr/tesseract"
	"github.com/wudi/pdftools/registry"
	"github.com/wudi/pdftools/tools"
)

var version = "dev"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "pdftools",
		Short:         "PDF and Office document toolkit",
		Long:          "pdftools merges, splits, converts, secures and annotates PDF and Office files, over HTTP or one operation at a time.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate(fmt.Sprintf("pdftools {{.Version}} (%s)\n", runtime.Version()))
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (YAML)")
	cmd.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newToolsCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, *config.Loader, error) {
	l := config.NewLoader(o.configPath)
	cfg, err := l.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, l, nil
}

// buildRegistry assembles the operation table. OCR goes through Tesseract
// with the configured language and trained data.
func buildRegistry(cfg *config.Config, logger *zap.Logger) (*registry.Registry, error) {
	engine := tesseract.New(
		tesseract.WithDefaultLanguage(cfg.OCR.DefaultLanguage),
		tesseract.WithTessdataPrefix(cfg.OCR.TessdataPrefix),
	)
	tk := tools.New(
		tools.WithLogger(observability.NewZapLogger(logger.Named("engine"))),
		tools.WithOCR(engine, cfg.OCR.DefaultLanguage),
	)
	return registry.New(tk.Catalog()...)
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			return cfg.WriteYAML(cmd.OutOrStdout())
		},
	}
}
