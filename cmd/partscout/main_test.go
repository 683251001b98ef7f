package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/IshaanNene/partscout/internal/catalog"
	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/types"
)

func TestExecuteExitCodes(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    int
		wantOut string
	}{
		{"no site", nil, types.ExitInvalidInput, ""},
		{"unknown site", []string{"toyota", "vehicle", "JT2BF22K1W0123456"}, types.ExitUnsupported, ""},
		{"unknown operation", []string{"sevenzap", "wheels", "WBA3A5C55CF256651"}, types.ExitUnsupported, ""},
		{"site without operation", []string{"etka"}, types.ExitInvalidInput, ""},
		{"missing VIN", []string{"sevenzap", "vehicle"}, types.ExitInvalidInput, "{}\n"},
		{"bad VIN", []string{"realoem", "vehicle", "WB@3A5C55"}, types.ExitInvalidInput, "{}\n"},
		{"missing search terms", []string{"sevenzap", "parts", "WBA3A5C55CF256651"}, types.ExitInvalidInput, "[]\n"},
		{"missing part", []string{"etka", "parts", "WAUZZZ8K9BA123456"}, types.ExitInvalidInput, "[]\n"},
		{"missing group", []string{"realoem", "group", "WBA3A5C55CF256651"}, types.ExitInvalidInput, `{"subgroups":[]}` + "\n"},
		{"missing part number", []string{"autodoc", "oe"}, types.ExitInvalidInput, "[]\n"},
		{"bad flag", []string{"--bogus"}, types.ExitInvalidInput, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			got := execute(context.Background(), tt.args, &stdout, &stderr)
			if got != tt.want {
				t.Errorf("exit = %d, want %d (stderr: %s)", got, tt.want, stderr.String())
			}
			if tt.wantOut != "" {
				if stdout.String() != tt.wantOut {
					t.Errorf("stdout = %q, want %q", stdout.String(), tt.wantOut)
				}
				return
			}
			if stdout.Len() != 0 && !strings.Contains(stdout.String(), "Usage") {
				t.Errorf("unexpected stdout: %s", stdout.String())
			}
		})
	}
}

func TestVersion(t *testing.T) {
	var stdout bytes.Buffer
	if code := execute(context.Background(), []string{"version"}, &stdout, io.Discard); code != types.ExitOK {
		t.Fatalf("exit = %d", code)
	}
	if got := stdout.String(); got != "partscout "+config.Version+"\n" {
		t.Errorf("version output = %q", got)
	}
}

func TestSiteCommands(t *testing.T) {
	root := newRootCmd(io.Discard, io.Discard)
	for _, path := range [][]string{
		{"sevenzap", "vehicle"}, {"sevenzap", "parts"},
		{"realoem", "vehicle"}, {"realoem", "find-part"}, {"realoem", "group"}, {"realoem", "subgroups"},
		{"etka", "vehicle"}, {"etka", "parts"}, {"etka", "maintenance"},
		{"mercedes", "vehicle"}, {"mercedes", "parts"},
		{"ssg", "vehicle"},
		{"autodoc", "oe"},
		{"serve"}, {"cache", "purge"}, {"config"}, {"version"},
	} {
		cmd, rest, err := root.Find(path)
		if err != nil || len(rest) != 0 || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not found (got %q, rest %v, err %v)", path, cmd.Name(), rest, err)
		}
	}
}

func TestBuildQuery(t *testing.T) {
	reg := catalog.Default(slog.New(slog.NewTextHandler(io.Discard, nil)))
	tests := []struct {
		site, op string
		args     []string
		wantVIN  string
		wantArgs []string
		wantErr  error
	}{
		{"sevenzap", "parts", []string{"wba3a5c55cf256651", "expansion", "valve"}, "WBA3A5C55CF256651", []string{"expansion", "valve"}, nil},
		{"realoem", "group", []string{"WBA3A5C55CF256651", "Brakes front", "pad"}, "WBA3A5C55CF256651", []string{"Brakes front", "pad"}, nil},
		{"autodoc", "oe", []string{"8K0 260 805 E"}, "", []string{"8K0 260 805 E"}, nil},
		{"ssg", "vehicle", []string{"WDD2050041R123456"}, "WDD2050041R123456", nil, nil},
		{"ssg", "vehicle", nil, "", nil, types.ErrInvalidInput},
		{"mercedes", "parts", []string{"WDD2050041R123456"}, "", nil, types.ErrInvalidInput},
	}
	for _, tt := range tests {
		_, op, err := reg.Lookup(tt.site, tt.op)
		if err != nil {
			t.Fatalf("lookup %s %s: %v", tt.site, tt.op, err)
		}
		q, err := buildQuery(tt.site, op, tt.args)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("%s %s %v: err = %v, want %v", tt.site, tt.op, tt.args, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s %s %v: %v", tt.site, tt.op, tt.args, err)
			continue
		}
		if q.VIN != tt.wantVIN || strings.Join(q.Args, "|") != strings.Join(tt.wantArgs, "|") {
			t.Errorf("%s %s: got vin %q args %q", tt.site, tt.op, q.VIN, q.Args)
		}
	}
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "site", "etka")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"site":"etka"`) {
		t.Errorf("log output = %s", out)
	}
}

func TestMask(t *testing.T) {
	for in, want := range map[string]string{"": "-", "ab": "**", "garage": "g****e"} {
		if got := mask(in); got != want {
			t.Errorf("mask(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCheckProxies(t *testing.T) {
	var hits atomic.Int64
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer proxy.Close()
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	cfg := config.DefaultConfig()
	cfg.Proxy.Enabled = true
	cfg.Proxy.URLs = []string{proxy.URL, deadURL}
	cfg.Proxy.CheckURL = "http://catalog.example/"
	cfg.Proxy.CheckInterval = 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pm := newProxies(cfg, logger)
	if pm == nil {
		t.Fatal("newProxies returned nil with proxies enabled")
	}
	checkProxies(context.Background(), cfg.Proxy, pm)
	if hits.Load() != 1 {
		t.Errorf("proxy saw %d checks, want 1", hits.Load())
	}
	if pm.HealthyCount() != 1 || pm.Count() != 2 {
		t.Errorf("healthy %d of %d, want 1 of 2", pm.HealthyCount(), pm.Count())
	}

	cfg.Proxy.Enabled = false
	if newProxies(cfg, logger) != nil {
		t.Error("newProxies should return nil with proxies disabled")
	}
	checkProxies(context.Background(), cfg.Proxy, nil)
}
