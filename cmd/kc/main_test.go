package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alfredjeanlab/kconf/internal/namespace"
	"github.com/alfredjeanlab/kconf/internal/server"
	"github.com/alfredjeanlab/kconf/internal/store/memory"
	"github.com/alfredjeanlab/kconf/internal/ui"
)

func TestMain(m *testing.M) {
	ui.ForceNoColor()
	os.Exit(m.Run())
}

// startServer runs the HTTP API over an in-memory store.
func startServer(t *testing.T) string {
	t.Helper()
	svc := namespace.NewService(memory.New(), namespace.NewRouter("internal/global", "internal/user"))
	srv := httptest.NewServer(server.NewConfigServer(svc, nil, nil).NewHTTPHandler(""))
	t.Cleanup(srv.Close)
	return srv.URL
}

// runKC executes the root command against url and returns stdout.
func runKC(t *testing.T, url string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--transport", "http", "--http-url", url}, args...))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("kc %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

// Flag values persist on the package-level commands between runs, so the
// steps below only ever turn flags on.
func TestCommandsAgainstServer(t *testing.T) {
	url := startServer(t)
	t.Cleanup(func() {
		jsonOutput = false
		userID = ""
	})

	if got := runKC(t, url, "health"); strings.TrimSpace(got) != "ok" {
		t.Errorf("health = %q, want ok", got)
	}

	if got := runKC(t, url, "set", "theme", `"dark"`); strings.TrimSpace(got) != `"dark"` {
		t.Errorf("set = %q", got)
	}
	if got := runKC(t, url, "get", "theme"); strings.TrimSpace(got) != `"dark"` {
		t.Errorf("get = %q", got)
	}

	runKC(t, url, "set", "prefs", `{"a":0,"b":2}`)
	if got := runKC(t, url, "update", "prefs", `{"a":1}`); !strings.Contains(got, `"a": 1`) || strings.Contains(got, `"b"`) {
		t.Errorf("update should print the delta, got %q", got)
	}

	list := runKC(t, url, "list", "internal/global/")
	for _, want := range []string{"PATH", "internal/global/prefs", "internal/global/theme", `{"a":1,"b":2}`} {
		if !strings.Contains(list, want) {
			t.Errorf("list missing %q:\n%s", want, list)
		}
	}

	file := filepath.Join(t.TempDir(), "snap.jsonl")
	runKC(t, url, "export", "-o", file)
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("export wrote %d lines, want 3:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], `"entry_count":2`) {
		t.Errorf("header = %s", lines[0])
	}

	if got := runKC(t, url, "get", "volume", "--default", "7"); strings.TrimSpace(got) != "7" {
		t.Errorf("get with default = %q", got)
	}

	got := runKC(t, url, "--json", "--user", "u1", "get", "lang", "--default", "en", "--string")
	var v valueOutput
	if err := json.Unmarshal([]byte(got), &v); err != nil {
		t.Fatalf("decode %q: %v", got, err)
	}
	if v.Namespace != "user" || v.UserID != "u1" || v.Key != "lang" || string(v.Value) != `"en"` {
		t.Errorf("json get = %+v", v)
	}
}

func TestNewClientUnknownTransport(t *testing.T) {
	old := transport
	t.Cleanup(func() { transport = old })
	transport = "carrier-pigeon"
	if _, err := newClient(); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}
