// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sam-fredrickson/deepmerge"
	"github.com/sam-fredrickson/deepmerge/internal/codec"
	"github.com/sam-fredrickson/deepmerge/internal/logging"
)

// RunOptions configures one merge run.
type RunOptions struct {
	// Strategy combines lists without a field rule. Nil means the library default.
	Strategy deepmerge.Strategy
	// Fields assigns strategies to dotted key paths.
	Fields map[string]deepmerge.Strategy
	// Format is the output format; Auto uses the first file's format.
	Format codec.Format
	// Logger receives progress records. Nil discards them.
	Logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()
	var (
		cfgFile string
		outPath string
		fields  []string
	)

	cmd := &cobra.Command{
		Use:   "deepmerge [flags] FILE...",
		Short: "Deep-merge configuration files",
		Long: `deepmerge merges YAML, JSON, and TOML documents left to right.

Maps are merged key by key. Lists are combined by a strategy: replace, concat,
union, keyed (match items on an auto-detected key such as id or name), or
keyed:<key>. Rules for individual lists are given with --field.`,
		Example: `  # merge env-specific overlay into common base
  deepmerge -o config.yaml base.yaml env.yaml

  # match services by name, dedupe their ports
  deepmerge --field services=keyed:name --field services.ports=union base.yaml prod.yaml`,
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, files []string) error {
			var lc logging.Config
			if err := v.UnmarshalKey("logging", &lc); err != nil {
				return fmt.Errorf("invalid logging configuration: %w", err)
			}
			logger := logging.Setup(lc, stderr)

			opts, err := runOptions(v, fields)
			if err != nil {
				return err
			}
			opts.Logger = logger

			out := stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return Run(opts, files, out)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.deepmerge.yaml or ./.deepmerge.yaml)")
	flags.StringVarP(&outPath, "out", "o", "", "output file path (defaults to stdout)")
	flags.String("strategy", "", `list strategy [replace, concat, union, keyed, keyed:<key>] (default "concat")`)
	flags.String("format", "", "output format [json, yaml, toml] (defaults to first file's format)")
	flags.StringArrayVar(&fields, "field", nil, "list strategy for a key path, as path=strategy (repeatable)")
	flags.String("log-level", "warn", "log level [debug, info, warn, error]")
	flags.String("log-format", "text", "log format [text, json]")

	_ = v.BindPFlag("strategy", flags.Lookup("strategy"))
	_ = v.BindPFlag("format", flags.Lookup("format"))
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("logging.format", flags.Lookup("log-format"))
	v.SetEnvPrefix("DEEPMERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cmd.SetErrPrefix("deepmerge:")
	return cmd
}

func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
		return nil
	}

	v.SetConfigName(".deepmerge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// runOptions resolves the configured strategies and format. Field rules given as
// flags win over the config file's "fields" table.
func runOptions(v *viper.Viper, fieldFlags []string) (RunOptions, error) {
	var opts RunOptions

	if name := v.GetString("strategy"); name != "" {
		s, err := deepmerge.ParseStrategy(name)
		if err != nil {
			return opts, err
		}
		opts.Strategy = s
	}

	format, err := codec.ParseFormat(v.GetString("format"))
	if err != nil {
		return opts, err
	}
	opts.Format = format

	rules := v.GetStringMapString("fields")
	if rules == nil {
		rules = make(map[string]string)
	}
	for _, field := range fieldFlags {
		path, name, ok := strings.Cut(field, "=")
		if !ok || path == "" {
			return opts, fmt.Errorf("invalid --field %q: want path=strategy", field)
		}
		rules[path] = name
	}
	if len(rules) > 0 {
		opts.Fields = make(map[string]deepmerge.Strategy, len(rules))
		for path, name := range rules {
			s, err := deepmerge.ParseStrategy(name)
			if err != nil {
				return opts, fmt.Errorf("field %s: %w", path, err)
			}
			opts.Fields[path] = s
		}
	}
	return opts, nil
}

// Run merges files left to right and writes the result to output.
func Run(opts RunOptions, files []string, output io.Writer) error {
	if len(files) == 0 {
		return fmt.Errorf("no files to merge")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	merger, err := deepmerge.NewMerger(deepmerge.Options{
		Strategy:        opts.Strategy,
		FieldStrategies: opts.Fields,
		Logger:          log,
	})
	if err != nil {
		return err
	}

	outputFormat := opts.Format
	docs := make([]any, 0, len(files))
	for _, file := range files {
		doc, fileFormat, err := readFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		log.Debug("read document", "file", file, "format", fileFormat)
		docs = append(docs, doc)
		if outputFormat == codec.Auto {
			outputFormat = fileFormat
		}
	}

	merged, err := merger.Merge(docs...)
	if err != nil {
		return fmt.Errorf("merge failed while processing files %v: %w", files, err)
	}
	log.Info("merged documents", "files", len(files), "strategy", fmt.Sprint(merger.Strategy()))

	marshaled, err := outputFormat.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal result as %s: %w", outputFormat, err)
	}

	if _, err := output.Write(marshaled); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func readFile(file string) (any, codec.Format, error) {
	f, err := codec.FormatOf(filepath.Base(file))
	if err != nil {
		return nil, f, err
	}
	contents, err := os.ReadFile(file)
	if err != nil {
		return nil, f, err
	}
	doc, err := f.Unmarshal(contents)
	return doc, f, err
}
