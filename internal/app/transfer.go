package app

import (
	"context"
	"fmt"
	"time"

	rtegdbErrors "github.com/tturner/rtegdb/internal/errors"
	"github.com/tturner/rtegdb/internal/progress"
	"github.com/tturner/rtegdb/internal/rtedbg"
	"github.com/tturner/rtegdb/internal/transport"
)

// progressThreshold hides the bar for header and word accesses.
const progressThreshold = 16 * 1024

// TransferOptions configure the transfer command. Progress draws a bar on
// stderr for structures larger than 16 kB.
type TransferOptions struct {
	CommonOptions
	// Decode overrides scripts.decode.
	Decode   string
	Progress bool
}

// RunTransfer performs one data transfer and runs the decode command.
func RunTransfer(opts TransferOptions) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := open(ctx, &opts.CommonOptions, "transfer")
	if err != nil {
		return err
	}
	defer e.Close()

	if opts.Decode != "" {
		e.cfg.Scripts.Decode = opts.Decode
	}

	res, err := e.transfer(ctx, opts.Progress)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, transferSummary(res, e.cfg.Structure.SnapshotFile))
	if res.OldFilter != 0 || res.RestoredFilter != 0 {
		fmt.Fprintln(e.out, rtedbg.DescribeFilter(res.RestoredFilter, e.filterNames()))
	}
	if msg, err := e.upload(ctx); err != nil {
		return err
	} else if msg != "" {
		fmt.Fprintln(e.out, msg)
	}

	if e.cfg.Scripts.Decode != "" {
		if err := runDecode(ctx, e.cfg.Scripts.Decode, e.out, e.log); err != nil {
			return err
		}
	}
	return nil
}

// transfer runs one Device.Transfer into the configured snapshot file.
func (e *env) transfer(ctx context.Context, showProgress bool) (*rtedbg.TransferResult, error) {
	var bar *progress.ProgressBar
	if showProgress {
		bar = progress.NewProgressBar(int64(e.cfg.Structure.Size), "Reading")
		update := bar.Callback()
		e.sess.SetProgress(func(done, total int) {
			if total >= progressThreshold {
				update(done, total)
			}
		})
		defer e.sess.SetProgress(nil)
	}

	start := time.Now()
	res, err := e.dev.Transfer(ctx, rtedbg.FileSink{Path: e.cfg.Structure.SnapshotFile})
	e.log.LogTransfer("transfer", uint32(e.cfg.Structure.Address), e.dev.Size(), time.Since(start), err)
	if bar != nil && e.dev.Size() >= progressThreshold {
		bar.Finish()
	}
	if err != nil {
		return nil, rtegdbErrors.WrapTransferError(err, "data transfer")
	}
	return res, nil
}

// upload copies the snapshot to the gateway host when structure.upload is
// set. It returns an empty message otherwise.
func (e *env) upload(ctx context.Context) (string, error) {
	remote := e.cfg.Structure.Upload
	if remote == "" || e.gw == nil {
		return "", nil
	}
	gw, ok := e.gw.(*transport.Gateway)
	if !ok {
		return "", fmt.Errorf("upload snapshot: %s is not an SSH gateway", e.gw)
	}
	n, err := gw.Put(ctx, e.cfg.Structure.SnapshotFile, remote)
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	e.log.Verbose("Uploaded %s to %s:%s", e.cfg.Structure.SnapshotFile, gw.Addr(), remote)
	return fmt.Sprintf("Uploaded %d bytes to %s", n, remote), nil
}

func transferSummary(res *rtedbg.TransferResult, path string) string {
	ms := float64(res.Elapsed.Microseconds()) / 1000
	var speed float64
	if ms > 0 {
		speed = float64(res.Size) / ms
	}
	s := fmt.Sprintf("Transferred %d bytes to %s in %.1f ms (%.1f kB/s), %s mode",
		res.Size, path, ms, speed, res.Header.Mode())
	if res.Cleared {
		s += ", buffer cleared"
	}
	return s
}
