// Command stitch compiles WebAssembly modules to the engine's internal
// instruction set and dumps the result.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stitchvm/stitch"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stitch",
		Short:         "Compile WebAssembly to register-based internal code",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCompileCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newCompileCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
		noColor    bool
		intercept  bool
	)
	cmd := &cobra.Command{
		Use:   "compile <module.wasm>",
		Short: "Compile every function of a module and dump the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := stitch.DefaultConfig()
			if configPath != "" {
				var err error
				if cfg, err = stitch.LoadConfigFile(configPath); err != nil {
					return err
				}
			}
			if intercept {
				cfg.Intercept = true
			}
			if verbose {
				logger, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				defer logger.Sync() //nolint:errcheck
				cfg.Logger = logger
			}
			if noColor {
				color.NoColor = true
			}

			input, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			compiled, err := stitch.CompileModule(input, cfg)
			if err != nil {
				return err
			}
			defer compiled.Close()

			out := cmd.OutOrStdout()
			for _, fn := range compiled.Functions() {
				fmt.Fprintf(out, "func[%d] frame=%d\n", fn.Index, fn.MaxStackHeight())
				if err := fn.Dump(out); err != nil {
					return err
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "TOML engine configuration file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colorized output")
	cmd.Flags().BoolVar(&intercept, "intercept", false, "emit on_enter/on_exit hooks")
	return cmd
}
