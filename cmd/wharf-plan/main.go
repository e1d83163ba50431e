// Command wharf-plan is a developer-facing inspection tool: it drives the
// same frontend.Build orchestration as cmd/wharf-frontend against a real
// buildkitd connection, but always in debug-dump mode, so a crate's graph
// and LLB can be inspected without wiring up the full gateway-frontend
// handshake a `docker buildx build --build-arg` invocation would require.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/moby/buildkit/client"
	gwclient "github.com/moby/buildkit/frontend/gateway/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shmocker/wharf/internal/frontend"
)

var (
	version = "dev"
	commit  = "unknown"

	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "wharf-plan",
	Short: "Inspect a crate's compiled build graph and LLB via a running buildkitd",
	Long: `wharf-plan drives the wharf frontend's build-plan-to-LLB pipeline against
a running buildkitd, dumping the resolved config, build plan, build graph,
and LLB definition to a local directory instead of producing an image.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			fmt.Printf("wharf-plan version: %s (%s)\n", version, commit)
		}
	},
}

var planCmd = &cobra.Command{
	Use:   "plan PATH",
	Short: "Resolve a crate's build plan and dump its debug artifacts",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanCommand,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wharf-plan.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	planCmd.Flags().String("addr", "unix:///run/buildkit/buildkitd.sock", "buildkitd address")
	planCmd.Flags().StringP("file", "f", "Cargo.toml", "manifest path relative to the build context")
	planCmd.Flags().StringSlice("features", []string{}, "Cargo features to enable")
	planCmd.Flags().Bool("no-default-features", false, "disable the manifest's default features")
	planCmd.Flags().String("mode", "", "build profile: release-binaries (default), debug-binaries, release-tests, debug-tests")
	planCmd.Flags().StringSlice("debug", []string{"all"}, "debug artifacts to dump: config, build-plan, build-graph, llb, all")
	planCmd.Flags().StringSlice("cache-from", []string{}, "cache import sources")
	planCmd.Flags().String("out-dir", "./wharf-debug", "local directory the dumped artifacts are exported to")

	rootCmd.AddCommand(planCmd)

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("addr", planCmd.Flags().Lookup("addr"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".wharf-plan")
	}

	viper.SetEnvPrefix("WHARF_PLAN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func runPlanCommand(cmd *cobra.Command, args []string) error {
	buildPath := args[0]

	addr := viper.GetString("addr")
	filename, _ := cmd.Flags().GetString("file")
	features, _ := cmd.Flags().GetStringSlice("features")
	noDefaultFeatures, _ := cmd.Flags().GetBool("no-default-features")
	mode, _ := cmd.Flags().GetString("mode")
	debug, _ := cmd.Flags().GetStringSlice("debug")
	cacheFrom, _ := cmd.Flags().GetStringSlice("cache-from")
	outDir, _ := cmd.Flags().GetString("out-dir")

	attrs := map[string]string{
		"filename": filename,
	}
	if len(features) > 0 {
		attrs["features"] = strings.Join(features, ",")
	}
	if noDefaultFeatures {
		attrs["no-default-features"] = "true"
	}
	if mode != "" {
		attrs["mode"] = mode
	}
	if len(debug) == 0 {
		debug = []string{"all"}
	}
	attrs["debug"] = strings.Join(debug, ",")
	if len(cacheFrom) > 0 {
		attrs["cache-from"] = strings.Join(cacheFrom, ";")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\ninterrupted")
		cancel()
	}()

	c, err := client.New(ctx, addr)
	if err != nil {
		return fmt.Errorf("connecting to buildkitd at %s: %w", addr, err)
	}
	defer c.Close()

	solveOpt := client.SolveOpt{
		FrontendAttrs: attrs,
		LocalDirs: map[string]string{
			"context": buildPath,
		},
		Exports: []client.ExportEntry{
			{Type: client.ExporterLocal, OutputDir: outDir},
		},
	}

	statusCh := make(chan *client.SolveStatus)
	done := make(chan struct{})
	go func() {
		defer close(done)
		reportStatus(statusCh)
	}()

	_, err = c.Build(ctx, solveOpt, "wharf-plan", func(ctx context.Context, gw gwclient.Client) (*gwclient.Result, error) {
		return frontend.Build(ctx, gw)
	}, statusCh)

	<-done

	if err != nil {
		return fmt.Errorf("plan failed: %w", err)
	}

	fmt.Printf("debug artifacts written to %s\n", outDir)
	return nil
}

func reportStatus(statusCh <-chan *client.SolveStatus) {
	for status := range statusCh {
		for _, v := range status.Vertexes {
			if v.Error != "" {
				fmt.Fprintf(os.Stderr, "ERROR [%s]: %s\n", v.Name, v.Error)
			} else if v.Completed != nil {
				fmt.Printf("[done] %s\n", v.Name)
			} else if v.Started != nil {
				fmt.Printf("[start] %s\n", v.Name)
			}
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
