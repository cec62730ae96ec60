package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/rtegdb/internal/app"
)

type benchFlags struct {
	common      commonFlags
	repetitions int
	maxDuration time.Duration
	csvFile     string
	jsonFile    string
	quiet       bool
}

func newBenchCmd() *cobra.Command {
	flags := &benchFlags{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure the data transfer speed",
		Long: `Read the complete logging structure repeatedly and record the time of
each read. Results are written to a ';' separated CSV file (default
speed_test.csv) followed by the minimal, maximal and average figures.`,
		Example: `  rtegdb bench --repetitions 200 --max-duration 10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return exitOnError(runBench(flags))
		},
	}

	addCommonFlags(cmd, &flags.common)
	cmd.Flags().IntVar(&flags.repetitions, "repetitions", 0, "Maximum number of reads (default 1000)")
	cmd.Flags().DurationVar(&flags.maxDuration, "max-duration", 0, "Time limit of the benchmark (default 20s)")
	cmd.Flags().StringVar(&flags.csvFile, "csv", "", "CSV output file (default \"speed_test.csv\")")
	cmd.Flags().StringVar(&flags.jsonFile, "json", "", "Also write the results as JSON")
	cmd.Flags().BoolVar(&flags.quiet, "quiet", false, "Do not show the running count")

	return cmd
}

func runBench(flags *benchFlags) error {
	return app.RunBenchmark(app.BenchmarkOptions{
		CommonOptions: flags.common.options(),
		Repetitions:   flags.repetitions,
		MaxDuration:   flags.maxDuration,
		CSVFile:       flags.csvFile,
		JSONFile:      flags.jsonFile,
		Quiet:         flags.quiet,
	})
}
