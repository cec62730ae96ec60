package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestRequiredFlagsErrors(t *testing.T) {
	tests := []struct {
		name    string
		cmd     func() *cobra.Command
		args    []string
		wantErr string
	}{
		{
			name:    "filter missing value",
			cmd:     newFilterCmd,
			args:    nil,
			wantErr: "required flag --value not set",
		},
		{
			name:    "mode missing mode",
			cmd:     newModeCmd,
			args:    nil,
			wantErr: "required flag --mode not set",
		},
		{
			name:    "init missing cfg",
			cmd:     newInitCmd,
			args:    nil,
			wantErr: "required flag --cfg not set",
		},
		{
			name:    "init missing frequency",
			cmd:     newInitCmd,
			args:    []string{"0x0600000E"},
			wantErr: "required flag --frequency not set",
		},
		{
			name:    "script missing file",
			cmd:     newScriptCmd,
			args:    nil,
			wantErr: "required flag --file not set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := tt.cmd()
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error: got %q want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"bench", "config", "filter", "header", "init", "mode", "monitor", "script", "transfer", "version"}
	var got []string
	for _, c := range root.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		found := false
		for _, g := range got {
			if g == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered (got %v)", name, got)
		}
	}
}

func TestCommonFlagsRegistered(t *testing.T) {
	cmd := newTransferCmd()
	for _, name := range []string{"config", "host", "port", "address", "size", "filter", "clear", "delay",
		"bin", "msgsize", "start", "filter-names", "detach", "log-file", "verbose", "debug", "pcap", "gateway", "upload", "decode"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s missing", name)
		}
	}
}

func TestCommonFlagsOptions(t *testing.T) {
	cmd := &cobra.Command{Use: "transfer"}
	flags := &commonFlags{}
	addCommonFlags(cmd, flags)
	if err := cmd.ParseFlags([]string{"--host", "10.0.0.7", "--port", "3333", "--address", "0x20001000", "--clear", "--bin", "out.bin"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opts := flags.options()
	if opts.Host != "10.0.0.7" || opts.Port != 3333 || opts.Address != "0x20001000" {
		t.Errorf("options = %+v", opts)
	}
	if !opts.Clear || opts.SnapshotFile != "out.bin" {
		t.Errorf("options = %+v", opts)
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "rtegdb version dev") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConfigInitCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtegdb.yaml")
	cmd := newConfigInitCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if !strings.Contains(out.String(), "Created default config file") {
		t.Errorf("output = %q", out.String())
	}
}
