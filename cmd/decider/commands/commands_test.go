package commands

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/TimurManjosov/decider/internal/auth"
	"github.com/TimurManjosov/decider/internal/decider"
	"github.com/TimurManjosov/decider/internal/store"
	"github.com/TimurManjosov/decider/internal/testutil"
)

// execute runs the CLI with args. Flag values live in package variables, so
// every flag is reset to its default first.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DECIDER_CLI_CONFIG", filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv("DECIDER_BASE_URL", "")
	t.Setenv("DECIDER_API_KEY", "")
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeDocument(t *testing.T, doc *store.Document, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data, err := store.EncodeDocument(doc, store.FormatFromPath(path))
	if err != nil {
		t.Fatalf("EncodeDocument: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestValidate(t *testing.T) {
	path := writeDocument(t, testutil.RolloutDocument(), "features.yaml")

	out, err := execute(t, "validate", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.HasPrefix(out, "valid: 3 features, hash v1, etag ") {
		t.Errorf("unexpected output: %q", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"features":[{"id":1,"name":"a","version":1,"fractional_availability":2}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "validate", bad); err == nil {
		t.Error("expected error for fraction outside [0,1]")
	}
}

func TestChoose_Local(t *testing.T) {
	path := writeDocument(t, testutil.RolloutDocument(), "features.json")

	out, err := execute(t, "choose", "new_checkout", "--source", path,
		"--context", `{"user_id":"user-3"}`, "--format", "json")
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	var dec decider.Decision
	if err := json.Unmarshal([]byte(out), &dec); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if dec.VariantName() != "on" || !dec.Fired("new_checkout_fa_in") {
		t.Errorf("unexpected decision: %+v", dec)
	}

	out, err = execute(t, "choose", "--source", path, "--context", `{"user_id":"qa-1"}`)
	if err != nil {
		t.Fatalf("choose all: %v", err)
	}
	for _, want := range []string{"new_checkout", "checkout_experiment", "treatment", "geo_banner"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestChoose_Errors(t *testing.T) {
	path := writeDocument(t, testutil.RolloutDocument(), "features.json")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown feature", []string{"choose", "missing", "--source", path}},
		{"context not an object", []string{"choose", "new_checkout", "--source", path, "--context", `[1]`}},
		{"both context flags", []string{"choose", "--source", path, "--context", `{}`, "--context-file", "x.json"}},
		{"bad format", []string{"choose", "--source", path, "--format", "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestChoose_Remote(t *testing.T) {
	server, _, _ := testutil.NewTestServer(t, testutil.RolloutDocument(), "admin-key")
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	out, err := execute(t, "choose", "checkout_experiment", "--base-url", ts.URL,
		"--context", `{"user_id":"qa-1"}`, "--format", "json")
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	var dec decider.Decision
	if err := json.Unmarshal([]byte(out), &dec); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if dec.VariantName() != "treatment" {
		t.Errorf("variant = %q, want treatment", dec.VariantName())
	}

	out, err = execute(t, "choose", "new_checkout", "missing", "--base-url", ts.URL)
	if err != nil {
		t.Fatalf("choose several: %v", err)
	}
	if !strings.Contains(out, "missing") || !strings.Contains(out, "new_checkout") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestFeatures(t *testing.T) {
	path := writeDocument(t, testutil.RolloutDocument(), "features.yaml")

	out, err := execute(t, "features", "--source", path)
	if err != nil {
		t.Fatalf("features: %v", err)
	}
	for _, want := range []string{"new_checkout", "checkout_experiment", "geo_banner", "50%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	server, _, _ := testutil.NewTestServer(t, testutil.RolloutDocument(), "admin-key")
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	out, err = execute(t, "features", "geo_banner", "--base-url", ts.URL, "--format", "json")
	if err != nil {
		t.Fatalf("features remote: %v", err)
	}
	var resp struct {
		Features []store.Feature `json:"features"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Features) != 1 || resp.Features[0].Name != "geo_banner" {
		t.Errorf("unexpected features: %+v", resp.Features)
	}

	if _, err := execute(t, "features", "nope", "--source", path); err == nil {
		t.Error("expected error for unknown feature")
	}
}

func TestBucket(t *testing.T) {
	out, err := execute(t, "bucket", "feature:new_checkout:1", "user-3", "--fraction", "0.5", "--weights", "0.5,0.5")
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	for _, want := range []string{
		"key:    feature:new_checkout:1:user-3",
		"hash:   v1",
		"bucket: 0.114043",
		"in:     true",
		"slot:   0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "bucket", "feature:new_checkout:1", "user-3")
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	if strings.Contains(out, "in:") || strings.Contains(out, "slot:") {
		t.Errorf("fraction and slot should only print when requested:\n%s", out)
	}

	for _, args := range [][]string{
		{"bucket", "ns", "id", "--hash-version", "9"},
		{"bucket", "ns", "id", "--fraction", "1.5"},
		{"bucket", "ns", "id", "--weights", "0.8,0.8"},
		{"bucket", "ns", "id", "--weights", "a"},
	} {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestHashKey(t *testing.T) {
	out, err := execute(t, "hash-key", "dsk_test")
	if err != nil {
		t.Fatalf("hash-key: %v", err)
	}
	hash := strings.TrimSpace(strings.TrimPrefix(out, "hash: "))
	if !auth.VerifyAPIKey("dsk_test", hash) {
		t.Errorf("hash %q does not verify", hash)
	}
	if strings.Contains(out, "key:") {
		t.Error("a supplied key should not be echoed")
	}
}

func TestReload(t *testing.T) {
	server, _, _ := testutil.NewTestServer(t, testutil.RolloutDocument(), "admin-key")
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	out, err := execute(t, "reload", "--base-url", ts.URL, "--api-key", "admin-key")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !strings.HasPrefix(out, "unchanged: 3 features") {
		t.Errorf("unexpected output: %q", out)
	}

	if _, err := execute(t, "reload", "--base-url", ts.URL, "--api-key", "wrong"); err == nil {
		t.Error("expected error with wrong key")
	}
}

func TestExport(t *testing.T) {
	path := writeDocument(t, testutil.RolloutDocument(), "features.yaml")
	target := filepath.Join(t.TempDir(), "out.json")

	if _, err := execute(t, "export", "--source", path, "--output", target); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := store.DecodeDocument(data, store.FormatJSON)
	if err != nil {
		t.Fatalf("exported document does not decode: %v", err)
	}
	if len(doc.Features) != 3 {
		t.Errorf("exported %d features, want 3", len(doc.Features))
	}

	out, err := execute(t, "export", "--source", path, "--as", "yaml")
	if err != nil {
		t.Fatalf("export to stdout: %v", err)
	}
	if !strings.Contains(out, "name: new_checkout") {
		t.Errorf("unexpected yaml:\n%s", out)
	}

	if _, err := execute(t, "export", "--source", path, "--as", "toml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestPublish_RequiresPostgres(t *testing.T) {
	path := writeDocument(t, testutil.RolloutDocument(), "features.json")
	if _, err := execute(t, "publish", path, "--target", path); err == nil {
		t.Error("expected error for a file target")
	}
}

func TestConfigCommands(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	run := func(args ...string) string {
		t.Helper()
		resetFlags(rootCmd)
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&bytes.Buffer{})
		rootCmd.SetArgs(args)
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out.String()
	}
	t.Setenv("DECIDER_CLI_CONFIG", cfgPath)

	run("config", "init")
	run("config", "set", "prod.base_url", "https://decider.example.com")
	run("config", "set", "prod.api_key", "secret-key")
	run("config", "set", "default", "prod")

	if got := strings.TrimSpace(run("config", "get", "prod.base_url")); got != "https://decider.example.com" {
		t.Errorf("config get = %q", got)
	}
	list := run("config", "list")
	for _, want := range []string{"Default Profile: prod", "local:", "prod:", "secr***"} {
		if !strings.Contains(list, want) {
			t.Errorf("config list missing %q:\n%s", want, list)
		}
	}
	if strings.Contains(list, "secret-key") {
		t.Error("config list should mask api keys")
	}
}
