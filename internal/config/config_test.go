package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Network.EnableMDNS {
		t.Fatal("expected mdns discovery on by default")
	}
	if cfg.HTTP.Listen != ":8090" {
		t.Fatalf("unexpected http listen %q", cfg.HTTP.Listen)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Network.Bootstrap = []string{"/ip4/104.131.131.82/tcp/4001/p2p/QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ"}
	cfg.Network.EnableMDNS = false
	cfg.Log.Level = "debug"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Network.EnableMDNS {
		t.Fatal("expected mdns disabled after reload")
	}
	if len(got.Network.Bootstrap) != 1 || got.Log.Level != "debug" {
		t.Fatalf("unexpected reloaded config: %+v", got)
	}
	opts := got.Libp2pOptions()
	if opts.EnableMDNS || len(opts.Bootstrap) != 1 {
		t.Fatalf("unexpected libp2p options: %+v", opts)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("expected warn, got %q", cfg.Log.Level)
	}
	if cfg.HTTP.Listen != ":8090" || cfg.Network.Rendezvous == "" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Network.Listen = []string{"not-a-multiaddr"}
	cfg.Network.Bootstrap = []string{"also/bad"}
	cfg.HTTP.Listen = "8090"
	cfg.Log.Level = "chatty"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	merr, ok := err.(*multierror.Error)
	if !ok {
		t.Fatalf("expected *multierror.Error, got %T", err)
	}
	if len(merr.Errors) != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", len(merr.Errors), err)
	}
	if !strings.Contains(err.Error(), "log.level") {
		t.Fatalf("missing log.level error: %v", err)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("network:\n  listen: [\"nope\"]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected invalid listen address to fail load")
	}
}

func TestEmptyHTTPListenIsRejected(t *testing.T) {
	cfg := Default()
	cfg.HTTP.Listen = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "http.listen") {
		t.Fatalf("expected http.listen error, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http:\n  listen: \"\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected empty http listen address to fail load")
	}
}
