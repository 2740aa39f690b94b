package quota

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewPoolAssignsStableIndexes(t *testing.T) {
	pool := NewPool([]string{"a", "b", "c"})
	if len(pool) != 3 {
		t.Fatalf("pool size = %d, want 3", len(pool))
	}
	for i, cred := range pool {
		if cred.Index != i {
			t.Errorf("pool[%d].Index = %d", i, cred.Index)
		}
	}
	if pool[1].Key != "b" {
		t.Errorf("pool[1].Key = %q, want b", pool[1].Key)
	}
}

func TestCredentialLogValueHidesSecret(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	cred := Credential{Index: 2, Key: "AIza-very-secret"}
	logger.Info("dispatch", slog.Any("credential", cred))

	out := buf.String()
	if strings.Contains(out, "AIza-very-secret") {
		t.Fatalf("log output contains the key secret: %s", out)
	}
	if !strings.Contains(out, "key_index=2") {
		t.Errorf("log output missing key index: %s", out)
	}
}

func TestRotateThreshold(t *testing.T) {
	if RotateThreshold != 9000 {
		t.Errorf("RotateThreshold = %d, want 9000", RotateThreshold)
	}
}
