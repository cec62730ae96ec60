package script

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	rsperr "github.com/tturner/rtegdb/internal/errors"
	"github.com/tturner/rtegdb/internal/rsp/client"
	"github.com/tturner/rtegdb/internal/rsp/rsptest"
	"github.com/tturner/rtegdb/internal/rtedbg"
)

type fakeSession struct {
	sent    []string
	flushes int
	fail    map[string]error
	output  map[string][]string
	trace   []string
}

func (f *fakeSession) Execute(_ context.Context, cmd string) ([]string, error) {
	f.sent = append(f.sent, cmd)
	f.trace = append(f.trace, "exec:"+cmd)
	if err := f.fail[cmd]; err != nil {
		return nil, err
	}
	return f.output[cmd], nil
}

func (f *fakeSession) FlushUnsolicited() []byte {
	f.flushes++
	f.trace = append(f.trace, "flush")
	return nil
}

type fakeDevice struct {
	cfg     rtedbg.ConfigWord
	freq    uint32
	filters []uint32
	err     error
}

func (f *fakeDevice) Initialize(_ context.Context, cfg rtedbg.ConfigWord, freq uint32) error {
	f.cfg, f.freq = cfg, freq
	return f.err
}

func (f *fakeDevice) SetFilter(_ context.Context, value uint32) error {
	f.filters = append(f.filters, value)
	return f.err
}

func newTestExecutor(sess Session, dev Device, out *bytes.Buffer, slept *[]time.Duration) *Executor {
	return NewExecutor(sess, dev, Options{
		Out: out,
		Sleep: func(_ context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		},
	})
}

func TestRunPseudoCommands(t *testing.T) {
	sess := &fakeSession{output: map[string][]string{"qRcmd,6869": {"hi "}}}
	dev := &fakeDevice{}
	var out bytes.Buffer
	var slept []time.Duration
	exec := newTestExecutor(sess, dev, &out, &slept)

	script := strings.Join([]string{
		"## comment",
		"",
		"#echo hello there\r",
		"#delay 25",
		"#init 0x0600000E 64000000",
		"#filter FFFF0000",
		"#bogus 1",
		"qRcmd,6869",
	}, "\n")

	res, err := exec.Run(context.Background(), strings.NewReader(script))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "hello there\n" {
		t.Errorf("echo output = %q", out.String())
	}
	if len(slept) != 1 || slept[0] != 25*time.Millisecond {
		t.Errorf("slept = %v, want [25ms]", slept)
	}
	if dev.cfg != 0x0600000E || dev.freq != 64000000 {
		t.Errorf("init got cfg 0x%08X freq %d", uint32(dev.cfg), dev.freq)
	}
	if len(dev.filters) != 1 || dev.filters[0] != 0xFFFF0000 {
		t.Errorf("filters = %v", dev.filters)
	}
	if len(sess.sent) != 1 || sess.sent[0] != "qRcmd,6869" {
		t.Errorf("sent = %q", sess.sent)
	}
	if res.Commands != 1 || len(res.Steps) != 7 {
		t.Errorf("commands = %d, steps = %d", res.Commands, len(res.Steps))
	}
	last := res.Steps[len(res.Steps)-1]
	if len(last.Output) != 1 || last.Output[0] != "hi " {
		t.Errorf("output = %q", last.Output)
	}
	if res.Steps[5].Kind != StepUnknown {
		t.Errorf("step 5 kind = %v, want unknown", res.Steps[5].Kind)
	}
}

func TestRunStopsOnCommandFailure(t *testing.T) {
	sess := &fakeSession{fail: map[string]error{"vBad": rsperr.New(rsperr.KindBadResponse, "not supported")}}
	var out bytes.Buffer
	var slept []time.Duration
	exec := newTestExecutor(sess, nil, &out, &slept)

	res, err := exec.Run(context.Background(), strings.NewReader("qOne\nvBad\nqThree\n#echo after\n"))
	if !errors.Is(err, rsperr.ErrBadResponse) {
		t.Fatalf("expected BadResponse, got %v", err)
	}
	if len(sess.sent) != 2 {
		t.Errorf("sent = %q, later lines must not run", sess.sent)
	}
	if res.Failed == nil || res.Failed.Line != 2 {
		t.Errorf("Failed = %+v, want line 2", res.Failed)
	}
	if out.Len() != 0 {
		t.Error("echo after the failure must not run")
	}
}

func TestRunPseudoErrorsContinue(t *testing.T) {
	sess := &fakeSession{}
	dev := &fakeDevice{err: rsperr.New(rsperr.KindFeatureDisabled, "filtering")}
	var out bytes.Buffer
	var slept []time.Duration
	exec := newTestExecutor(sess, dev, &out, &slept)

	res, err := exec.Run(context.Background(), strings.NewReader("#filter zz\n#filter 1\n#delay x\n#init 1\nqNext\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	errs := res.Errors()
	if len(errs) != 4 {
		t.Fatalf("errors = %v, want 4", errs)
	}
	if !errors.Is(errs[0], rsperr.ErrBadInput) || !errors.Is(errs[1], rsperr.ErrFeatureDisabled) {
		t.Errorf("errors = %v", errs)
	}
	if len(sess.sent) != 1 {
		t.Errorf("sent = %q, the command after failed pseudo-commands must run", sess.sent)
	}
	if res.Err() == nil {
		t.Error("Err() should join step errors")
	}
}

func TestRunFlushesBeforeFirstCommand(t *testing.T) {
	sess := &fakeSession{}
	var out bytes.Buffer
	var slept []time.Duration
	exec := newTestExecutor(sess, nil, &out, &slept)

	if _, err := exec.Run(context.Background(), strings.NewReader("qA\nqB\n#delay 1\nqC\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"flush", "exec:qA", "exec:qB", "flush", "exec:qC"}
	if strings.Join(sess.trace, " ") != strings.Join(want, " ") {
		t.Errorf("trace = %q, want %q", sess.trace, want)
	}
}

func TestRunNoDevice(t *testing.T) {
	var out bytes.Buffer
	var slept []time.Duration
	exec := newTestExecutor(&fakeSession{}, nil, &out, &slept)

	res, err := exec.Run(context.Background(), strings.NewReader("#filter 1\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errs := res.Errors(); len(errs) != 1 || !errors.Is(errs[0], rsperr.ErrBadInput) {
		t.Errorf("errors = %v", errs)
	}
}

func TestRunCanceled(t *testing.T) {
	sess := &fakeSession{}
	var out bytes.Buffer
	var slept []time.Duration
	exec := newTestExecutor(sess, nil, &out, &slept)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := exec.Run(ctx, strings.NewReader("qA\n")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sess.sent) != 0 {
		t.Error("no command should be sent")
	}
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"0x10", 0x10, false},
		{"FFFFFFFF", 0xFFFFFFFF, false},
		{" 0Xab ", 0xAB, false},
		{"0x", 0, true},
		{"100000000", 0, true},
		{"g1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHex(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHex(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseHex(%q) = 0x%X, want 0x%X", tt.in, got, tt.want)
			}
		})
	}
}

func TestRunFileOverSession(t *testing.T) {
	srv := rsptest.NewServer(t, 0x20000000, 16)
	srv.Handler = func(cmd string) ([]string, bool) {
		switch cmd {
		case "qRcmd,7265736574":
			return []string{rsptest.ConsoleReply("reset done\n"), "OK"}, true
		case "vUnsupported":
			return []string{""}, true
		}
		return nil, false
	}
	srv.Start()
	host, port := srv.Addr()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := client.Dial(ctx, host, port, client.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Close()

	path := filepath.Join(t.TempDir(), "1.cmd")
	body := "## reset the target\nqRcmd,7265736574\nvUnsupported\nqRcmd,7265736574\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exec := NewExecutor(sess, nil, Options{Out: &bytes.Buffer{}})
	res, err := exec.RunFile(ctx, path)
	if !errors.Is(err, rsperr.ErrBadResponse) {
		t.Fatalf("expected BadResponse, got %v", err)
	}
	if res.Commands != 2 {
		t.Errorf("Commands = %d, want 2", res.Commands)
	}
	if out := res.Steps[1].Output; len(out) != 1 || out[0] != "reset done " {
		t.Errorf("console output = %q", out)
	}
	count := 0
	for _, cmd := range srv.Commands() {
		if cmd == "qRcmd,7265736574" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("reset sent %d times, want 1", count)
	}
}
