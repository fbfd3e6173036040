package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jayeheffernan/builder"
)

// config is the optional --config file.yaml shape: seeds initial globals and
// the filesystem roots the FSReader resolves @include against (only the
// first root, counting -I roots before these, is searched). Mirrors
// cmd/geas/geas.go's flat config struct, extended with a file format since
// the CLI now has more than a couple of boolean toggles.
type config struct {
	Globals map[string]string `yaml:"globals"`
	Roots   []string          `yaml:"roots"`
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func main() {
	var (
		outputFile  string
		includeDirs []string
		defines     []string
		lineControl bool
		lexDebug    bool
		configPath  string
	)

	root := &cobra.Command{
		Use:   "builder <file>",
		Short: "expand @directives, @{...} expressions and @include references in a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]

			initial := map[string]builder.Value{}
			if configPath != "" {
				cfg, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				for k, v := range cfg.Globals {
					initial[k] = builder.String(v)
				}
				includeDirs = append(includeDirs, cfg.Roots...)
			}
			for _, d := range defines {
				name, value, ok := strings.Cut(d, "=")
				if !ok {
					return fmt.Errorf("-D requires NAME=VALUE, got %q", d)
				}
				initial[name] = builder.String(value)
			}

			source, err := os.ReadFile(file)
			if err != nil {
				return err
			}

			if lexDebug {
				for _, line := range builder.DebugTokens(string(source)) {
					fmt.Fprintln(os.Stdout, line)
				}
				return nil
			}

			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			roots := includeDirs
			if len(roots) == 0 {
				roots = []string{wd}
			}

			registry := builder.NewRegistry(
				builder.NewHTTPReader(),
				builder.NewGitReader(),
				builder.NewFSReader(os.DirFS(roots[0])),
			)
			cache := builder.NewLRUCache(256)

			var opts []builder.Option
			opts = append(opts, builder.WithLineControl(lineControl))

			m := builder.NewMachine(registry, cache, opts...)

			out, err := m.ExecuteString(string(source), file, "", initial)
			if err != nil {
				return err
			}

			w := os.Stdout
			if outputFile != "" {
				f, err := os.Create(outputFile)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err = fmt.Fprint(w, out)
			return err
		},
	}

	root.Flags().StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
	root.Flags().StringArrayVarP(&includeDirs, "include", "I", nil, "add an include root (repeatable; only the first root is searched)")
	root.Flags().StringArrayVarP(&defines, "define", "D", nil, "seed an initial global as NAME=VALUE (repeatable)")
	root.Flags().BoolVar(&lineControl, "line", false, "emit #line control markers at file boundaries")
	root.Flags().BoolVar(&lexDebug, "lex", false, "print the directive token stream instead of expanding")
	root.Flags().StringVar(&configPath, "config", "", "YAML file seeding initial globals and include roots")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
