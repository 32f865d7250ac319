package registry

import (
	"flag"
	"testing"

	"xdao.co/pora/storage"
	"xdao.co/pora/storage/testkit"
)

func init() {
	MustRegister(Backend{
		Name:        "test-memory",
		Description: "in-memory backend for registry tests",
		Usage:       UsageCLI,
		Options: []Option{
			{Name: "label", Default: "default", Usage: "label"},
			{Name: "extra", Usage: "extra"},
		},
		Open: func(opts map[string]string) (storage.Backend, error) {
			lastOpts = opts
			return testkit.NewMemory().Backend(), nil
		},
	})
}

var lastOpts map[string]string

func TestRegisterRejectsIncomplete(t *testing.T) {
	if err := Register(Backend{Usage: UsageCLI}); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if err := Register(Backend{Name: "x", Usage: UsageCLI}); err == nil {
		t.Fatalf("expected error for missing Open")
	}
	open := func(map[string]string) (storage.Backend, error) { return storage.Backend{}, nil }
	if err := Register(Backend{Name: "x", Open: open}); err == nil {
		t.Fatalf("expected error for missing Usage")
	}
	if err := Register(Backend{Name: "test-memory", Usage: UsageCLI, Open: open}); err == nil {
		t.Fatalf("expected error for duplicate name")
	}
}

func TestOpenAppliesDefaultsAndUsage(t *testing.T) {
	b, err := Open("test-memory", UsageCLI, map[string]string{"extra": "x"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b.Content == nil || b.Outboards == nil || b.Commitments == nil {
		t.Fatalf("backend roles not populated: %+v", b)
	}
	if lastOpts["label"] != "default" || lastOpts["extra"] != "x" {
		t.Fatalf("opts = %v", lastOpts)
	}

	if _, err := Open("test-memory", UsageDaemon, nil); err == nil {
		t.Fatalf("expected usage rejection")
	}
	if _, err := Open("nope", UsageCLI, nil); err == nil {
		t.Fatalf("expected unknown backend error")
	}
	if _, err := Open("test-memory", UsageCLI, map[string]string{"lable": "typo"}); err == nil {
		t.Fatalf("expected unknown option error")
	}
}

func TestFlagsOverlayBase(t *testing.T) {
	fs := flag.NewFlagSet("t", flag.ContinueOnError)
	f := RegisterFlags(fs, UsageCLI)
	if err := fs.Parse([]string{"--test-memory-label=fromflag"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := f.Options("test-memory", map[string]string{"label": "fromfile", "extra": "keep"})
	if got["label"] != "fromflag" || got["extra"] != "keep" {
		t.Fatalf("Options = %v", got)
	}

	found := false
	for _, n := range Names(UsageCLI) {
		if n == "test-memory" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Names missing test-memory")
	}
}
