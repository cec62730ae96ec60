package app

import (
	"context"
	"fmt"
	"time"

	rtegdbErrors "github.com/tturner/rtegdb/internal/errors"
	"github.com/tturner/rtegdb/internal/metrics"
	"github.com/tturner/rtegdb/internal/progress"
)

// BenchmarkOptions override the benchmark section of the configuration.
// Zero values keep the configured value.
type BenchmarkOptions struct {
	CommonOptions
	Repetitions int
	MaxDuration time.Duration
	CSVFile     string
	JSONFile    string
	Quiet       bool
}

// RunBenchmark measures full structure reads and writes the results.
func RunBenchmark(opts BenchmarkOptions) error {
	ctx, cancel := signalContext()
	defer cancel()
	e, err := open(ctx, &opts.CommonOptions, "bench")
	if err != nil {
		return err
	}
	defer e.Close()

	bc := e.cfg.Benchmark
	if opts.Repetitions > 0 {
		bc.Repetitions = opts.Repetitions
	}
	if opts.MaxDuration > 0 {
		bc.MaxDuration = opts.MaxDuration
	}
	if opts.CSVFile != "" {
		bc.CSV = opts.CSVFile
	}
	if opts.JSONFile != "" {
		bc.JSON = opts.JSONFile
	}

	counter := progress.NewCounter("Benchmark reads", 200*time.Millisecond)
	if opts.Quiet {
		counter.Disable()
	}
	sink, err := e.benchmark(ctx, bc.Repetitions, bc.MaxDuration, counter)
	counter.Finish()
	if err != nil && sink == nil {
		return err
	}
	if werr := e.writeBenchmark(sink, bc.CSV, bc.JSON); werr != nil {
		return werr
	}
	fmt.Fprint(e.out, metrics.FormatSummary(sink.Summary()))
	return err
}

// benchmark reads the whole structure up to reps times or until maxDur
// has passed. The first failed read ends the run.
func (e *env) benchmark(ctx context.Context, reps int, maxDur time.Duration, counter *progress.Counter) (*metrics.Sink, error) {
	h, err := e.dev.LoadHeader(ctx)
	if err != nil {
		return nil, rtegdbErrors.WrapTransferError(err, "benchmark")
	}
	size := int(h.StructureSize())
	buf := make([]byte, size)
	sink := metrics.NewSink(size)
	addr := uint32(e.cfg.Structure.Address)

	e.log.Info("Benchmark: %d reads of %d bytes, limit %s", reps, size, maxDur)
	deadline := time.Now().Add(maxDur)
	for i := 0; i < reps; i++ {
		if err := ctx.Err(); err != nil {
			return sink, err
		}
		if maxDur > 0 && time.Now().After(deadline) {
			e.log.Verbose("Benchmark time limit reached after %d reads", i)
			break
		}
		start := time.Now()
		err := e.sess.ReadMemory(ctx, addr, buf)
		elapsed := time.Since(start)
		if err != nil {
			sink.RecordError(elapsed, err)
			e.log.LogTransfer("benchmark read", addr, size, elapsed, err)
			return sink, rtegdbErrors.WrapTransferError(err, "benchmark")
		}
		sink.Record(elapsed)
		e.log.LogTransfer("benchmark read", addr, size, elapsed, nil)
		if counter != nil {
			counter.Update(int64(i+1), fmt.Sprintf("%.1f ms", float64(elapsed.Microseconds())/1000))
		}
	}
	return sink, nil
}

func (e *env) writeBenchmark(sink *metrics.Sink, csvPath, jsonPath string) error {
	samples := sink.Samples()
	summary := sink.Summary()
	if csvPath != "" {
		if err := metrics.WriteCSV(csvPath, samples, summary); err != nil {
			return err
		}
		e.log.Verbose("Benchmark results written to %s", csvPath)
	}
	if jsonPath != "" {
		if err := metrics.WriteJSON(jsonPath, samples, summary); err != nil {
			return err
		}
		e.log.Verbose("Benchmark results written to %s", jsonPath)
	}
	return nil
}
