package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/danmuck/qrgate/internal/status"
	"github.com/danmuck/qrgate/internal/testutil/testlog"
	"github.com/danmuck/qrgate/internal/verify"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRoot()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func field(t *testing.T, out, key string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(k) == key {
			return strings.TrimSpace(v)
		}
	}
	t.Fatalf("missing %s in output %q", key, out)
	return ""
}

func TestKeygenSignRoundTrip(t *testing.T) {
	testlog.Start(t)
	out, err := run(t, "keygen")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	pub := field(t, out, "public_key")
	priv := field(t, out, "private_key")

	out, err = run(t, "sign", "--key", priv, "door-9")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	scheme, err := verify.NewScheme("ed25519", "", pub)
	if err != nil {
		t.Fatalf("scheme: %v", err)
	}
	payload, ok, err := scheme.Verify(strings.TrimSpace(out))
	if err != nil || !ok || payload != "door-9" {
		t.Fatalf("signed token did not verify: payload=%q ok=%v err=%v", payload, ok, err)
	}
	testlog.Logf("commands/sign: token=%q", strings.TrimSpace(out))
}

func TestSealProducesVerifiableToken(t *testing.T) {
	testlog.Start(t)
	const secret = "0123456789abcdef-cli-secret"
	out, err := run(t, "seal", "--secret", secret, "locker=5")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	scheme, err := verify.NewSecretboxScheme([]byte(secret))
	if err != nil {
		t.Fatalf("scheme: %v", err)
	}
	payload, ok, err := scheme.Verify(strings.TrimSpace(out))
	if err != nil || !ok || payload != "locker=5" {
		t.Fatalf("sealed token did not verify: payload=%q ok=%v err=%v", payload, ok, err)
	}
}

func TestSignRequiresKey(t *testing.T) {
	testlog.Start(t)
	t.Setenv("QRGATE_SIGNING_KEY", "")
	if _, err := run(t, "sign", "x"); err == nil {
		t.Fatalf("expected error without signing key")
	}
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	testlog.Start(t)
	t.Setenv("QRGATE_CONFIG", "")
	if _, err := run(t, "serve", "--config", "does-not-exist.toml"); err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func TestVersionFlagReportsBuildVersion(t *testing.T) {
	testlog.Start(t)
	out, err := run(t, "--version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, status.Version) {
		t.Fatalf("version output %q missing %q", out, status.Version)
	}
}
