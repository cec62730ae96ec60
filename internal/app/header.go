package app

import (
	"context"
	"encoding/json"
	"fmt"

	rtegdbErrors "github.com/tturner/rtegdb/internal/errors"
	"github.com/tturner/rtegdb/internal/rtedbg"
)

type HeaderOptions struct {
	CommonOptions
	JSON bool
}

// headerReport is the JSON form of the header command.
type headerReport struct {
	Address        string        `json:"address"`
	StructureSize  int64         `json:"structure_size"`
	Mode           string        `json:"mode"`
	TimestampMHz   float64       `json:"timestamp_mhz"`
	BufferUsage    uint32        `json:"buffer_usage_percent"`
	EnabledFilters []int         `json:"enabled_filters"`
	Header         rtedbg.Header `json:"header"`
}

// RunHeader prints the logging structure header.
func RunHeader(opts HeaderOptions) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := open(ctx, &opts.CommonOptions, "header")
	if err != nil {
		return err
	}
	defer e.Close()

	if opts.JSON {
		data, err := e.headerJSON(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, string(data))
		return nil
	}
	text, err := e.describeHeader(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, text)
	return nil
}

func (e *env) describeHeader(ctx context.Context) (string, error) {
	h, err := e.dev.LoadHeader(ctx)
	if err != nil {
		return "", rtegdbErrors.WrapTransferError(err, "read header")
	}
	return rtedbg.Describe(h, e.filterNames()), nil
}

func (e *env) headerJSON(ctx context.Context) ([]byte, error) {
	h, err := e.dev.LoadHeader(ctx)
	if err != nil {
		return nil, rtegdbErrors.WrapTransferError(err, "read header")
	}
	report := headerReport{
		Address:        fmt.Sprintf("0x%08X", uint32(e.cfg.Structure.Address)),
		StructureSize:  h.StructureSize(),
		Mode:           h.Mode(),
		TimestampMHz:   h.TimestampMHz(),
		EnabledFilters: rtedbg.EnabledFilters(h.Filter),
		Header:         h,
	}
	if h.Config.SingleShotActive() {
		report.BufferUsage = h.BufferUsage()
	}
	if report.EnabledFilters == nil {
		report.EnabledFilters = []int{}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	return data, nil
}
