package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/ans/registration"
	"github.com/vinayprograms/ans/registry"
)

func run(t *testing.T, cmd *cobra.Command, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%s %v: %v\n%s", cmd.Name(), args, err, out.String())
	}
	return out.String()
}

func TestKeygen_Stdout(t *testing.T) {
	keygenOutDir = ""
	out := run(t, KeygenCmd, "")
	if !strings.Contains(out, "BEGIN EC PRIVATE KEY") && !strings.Contains(out, "BEGIN PRIVATE KEY") {
		t.Errorf("missing private key: %q", out)
	}
	if !strings.Contains(out, "BEGIN PUBLIC KEY") {
		t.Errorf("missing public key: %q", out)
	}
}

func TestRegisterWithGeneratedKeys(t *testing.T) {
	dir := t.TempDir()
	run(t, KeygenCmd, "", "--out", dir, "--name", "nia")
	keygenOutDir = ""

	keyPath := filepath.Join(dir, "nia.key")
	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key mode = %v, want 0600", info.Mode().Perm())
	}

	payload := `{"agent_id":"nia","name":"Nia","capabilities":["translator"],"endpoints":{"a2a":"https://nia.example/a2a"},"private_claims":{"rating":4.50}}`
	signDeregister = ""
	signed := run(t, SignCmd, payload, "--key", keyPath)
	if !strings.Contains(signed, `{"rating":4.50}`) {
		t.Errorf("numbers should be kept as written: %s", signed)
	}

	store := registry.NewMemoryStore()
	svc := registration.NewService(store, nil, registration.Config{})
	if _, err := svc.Register(context.Background(), []byte(signed)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	fp := strings.TrimSpace(run(t, FingerprintCmd, "", filepath.Join(dir, "nia.pub")))
	rec, err := store.Get(context.Background(), "nia")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.HasSuffix(rec.DID, ":"+fp) {
		t.Errorf("DID %q does not end in fingerprint %q", rec.DID, fp)
	}

	deregOut := run(t, SignCmd, "", "--key", keyPath, "--deregister", "nia", "--reason", "retired")
	signDeregister, signReason = "", ""
	var req registration.DeregisterRequest
	if err := json.Unmarshal([]byte(deregOut), &req); err != nil {
		t.Fatalf("decode deregister request: %v", err)
	}
	if err := svc.Deregister(context.Background(), req); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("store still holds %d records", store.Len())
	}
}

func TestSign_RejectsNonObject(t *testing.T) {
	dir := t.TempDir()
	run(t, KeygenCmd, "", "--out", dir)
	keygenOutDir = ""

	signDeregister = ""
	var out bytes.Buffer
	SignCmd.SetOut(&out)
	SignCmd.SetErr(&out)
	SignCmd.SetIn(strings.NewReader("null"))
	SignCmd.SetArgs([]string{"--key", filepath.Join(dir, "agent.key")})
	if err := SignCmd.Execute(); err == nil {
		t.Fatal("expected error for a null payload")
	}
}
