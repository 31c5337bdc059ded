package main

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dameikle/tika"
	"github.com/dameikle/tika/internal/config"
	"github.com/dameikle/tika/internal/render"
)

type extractFlags struct {
	configPath  string
	output      string
	maxDepth    int
	maxEmbedded int
	maxBytes    int64
	logLevel    string
	concurrency int
	options     []string
}

func newExtractCmd() *cobra.Command {
	var f extractFlags
	cmd := &cobra.Command{
		Use:   "extract [files...]",
		Short: "Extract one or more files, or stdin when none are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			return runExtract(cmd, cfg, args)
		},
	}

	d := config.Default()
	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML settings file")
	fl.StringVarP(&f.output, "output", "o", d.Output, "output format: json, rmeta, metadata or text")
	fl.IntVar(&f.maxDepth, "max-depth", d.MaxDepth, "maximum embedding depth (0 = no limit)")
	fl.IntVar(&f.maxEmbedded, "max-embedded", d.MaxEmbedded, "maximum embedded objects per document (0 = no limit)")
	fl.Int64Var(&f.maxBytes, "max-bytes", d.MaxBytes, "maximum bytes read per document (0 = no limit)")
	fl.StringVar(&f.logLevel, "log-level", d.LogLevel, "debug, info, warn or error")
	fl.IntVar(&f.concurrency, "concurrency", d.Concurrency, "files extracted at once (0 = one per CPU)")
	fl.StringArrayVar(&f.options, "option", nil, "extractor override as extractor.key=value (repeatable)")
	return cmd
}

// resolve loads the settings file and environment, then applies the flags
// that were set explicitly.
func (f *extractFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	fl := cmd.Flags()
	if fl.Changed("output") {
		cfg.Output = f.output
	}
	if fl.Changed("max-depth") {
		cfg.MaxDepth = f.maxDepth
	}
	if fl.Changed("max-embedded") {
		cfg.MaxEmbedded = f.maxEmbedded
	}
	if fl.Changed("max-bytes") {
		cfg.MaxBytes = f.maxBytes
	}
	if fl.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fl.Changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	for _, o := range f.options {
		if err := cfg.SetOption(o); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

func runExtract(cmd *cobra.Command, cfg config.Config, paths []string) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	opts := []tika.Option{
		tika.WithLogger(logger),
		tika.WithMaxDepth(cfg.MaxDepth),
		tika.WithMaxEmbedded(cfg.MaxEmbedded),
		tika.WithMaxBytes(cfg.MaxBytes),
		tika.WithConcurrency(cfg.Concurrency),
	}
	for name, kv := range cfg.Options {
		for k, v := range kv {
			opts = append(opts, tika.WithExtractorOption(name, k, v))
		}
	}
	t := tika.New(opts...)
	ctx := cmd.Context()

	var roots []*tika.Node
	if len(paths) == 0 {
		root, err := t.Extract(ctx, cmd.InOrStdin(), nil)
		if err != nil {
			return errors.Wrap(err, "stdin")
		}
		roots = []*tika.Node{root}
	} else {
		roots, err = t.ExtractMany(ctx, paths...)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	for _, root := range roots {
		if err := write(out, cfg.Output, root); err != nil {
			return err
		}
	}
	return nil
}

func write(w io.Writer, output string, root *tika.Node) error {
	switch output {
	case config.OutputRMeta:
		return render.WriteMetadataList(w, root)
	case config.OutputMetadata:
		return render.WriteMetadata(w, root.Metadata)
	case config.OutputText:
		_, err := io.WriteString(w, render.Text(root))
		return err
	default:
		return render.WriteTree(w, root)
	}
}
