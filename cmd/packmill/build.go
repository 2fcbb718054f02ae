package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/packmill/packmill/internal/diagnostics"
	"github.com/packmill/packmill/internal/pipeline"
	"github.com/packmill/packmill/internal/progress"
	"github.com/packmill/packmill/internal/service"
)

var showStats bool

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run a single build",
	Long:  "Build all configured entries once and write the assets to the output directory.",
	Args:  cobra.NoArgs,
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&showStats, "stats", false, "print a summary table of the produced assets")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger()
	bar := progress.Null()
	if showProgressBar {
		bar = progress.New("building")
	}

	svc := service.New(cfg).
		WithLogger(logger).
		WithProgressBar(bar).
		WithSingleShot(true)

	if err := svc.Run(cmd.Context()); err != nil {
		return err
	}

	compilation := svc.Compiler().LastCompilation()
	if compilation != nil {
		for _, d := range compilation.Diagnostics() {
			if d.Severity == diagnostics.SeverityError {
				cmd.PrintErrln("ERROR:", d)
			} else {
				cmd.PrintErrln("WARNING:", d)
			}
		}
		if showStats {
			if err := printStats(compilation); err != nil {
				return err
			}
		}
	}

	if status := svc.Status(); status.State != service.BuildStateSuccess {
		return fmt.Errorf("build failed (%s): %s", status.State, status.Message)
	}
	return nil
}

func printStats(compilation *pipeline.Compilation) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ASSET", "SIZE", "VERSION", "EMITTED")

	for _, filename := range compilation.AssetFilenames() {
		asset := compilation.GetAsset(filename)
		version := asset.Info.Version
		if len(version) > 12 {
			version = version[:12]
		}
		emitted := "no"
		if compilation.Emitted(filename) {
			emitted = "yes"
		}
		if err := table.Append(filename, fmt.Sprintf("%d B", len(asset.GetSource())), version, emitted); err != nil {
			return err
		}
	}

	fmt.Printf("%d modules, %d assets\n", compilation.Graph.NumModules(), len(compilation.AssetFilenames()))
	return table.Render()
}
