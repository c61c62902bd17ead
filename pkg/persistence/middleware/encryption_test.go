package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/brickrt/pkg/adapters/memory"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/persistence/middleware"
)

var ref = domain.ModComponentRef{ModID: "acme/mod", ModComponentID: "c1"}

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func write(t *testing.T, store interface {
	SetState(context.Context, domain.StateUpdate) (map[string]any, error)
}, data map[string]any, strategy domain.MergeStrategy) map[string]any {
	t.Helper()
	out, err := store.SetState(context.Background(), domain.StateUpdate{
		Namespace:     domain.NamespaceMod,
		Data:          data,
		MergeStrategy: strategy,
		Ref:           ref,
	})
	if err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	return out
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	inner := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(inner)
	ctx := context.Background()
	query := domain.StateQuery{Namespace: domain.NamespaceMod, Ref: ref}

	write(t, secure, map[string]any{"secret": "my-secret-sauce", "profile": map[string]any{"n": float64(1)}}, domain.MergeReplace)

	stored, err := inner.GetState(ctx, query)
	if err != nil {
		t.Fatalf("inner GetState failed: %v", err)
	}
	if s, _ := stored["secret"].(string); !strings.HasPrefix(s, "enc:") {
		t.Fatalf("expected sealed value, found: %v", stored["secret"])
	}

	got, err := secure.GetState(ctx, query)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if got["secret"] != "my-secret-sauce" {
		t.Errorf("expected 'my-secret-sauce', got %v", got["secret"])
	}

	merged := write(t, secure, map[string]any{"profile": map[string]any{"m": float64(2)}}, domain.MergeDeep)
	profile, _ := merged["profile"].(map[string]any)
	if profile["n"] != float64(1) || profile["m"] != float64(2) {
		t.Errorf("deep merge lost data: %v", merged)
	}
}

func TestEncryptionMiddleware_EventsCarryPlaintext(t *testing.T) {
	inner := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(inner)

	write(t, secure, map[string]any{"a": "1", "b": "2"}, domain.MergeReplace)

	var events []domain.StateChangeEvent
	unsubscribe := secure.Subscribe(func(_ context.Context, e domain.StateChangeEvent) {
		events = append(events, e)
	})
	defer unsubscribe()

	write(t, secure, map[string]any{"b": "3"}, domain.MergeShallow)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if len(events[0].Changed) != 1 || events[0].Changed["b"] != "3" {
		t.Errorf("expected only b to change, got %v", events[0].Changed)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	inner := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	query := domain.StateQuery{Namespace: domain.NamespaceMod, Ref: ref}

	write(t, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(inner),
		map[string]any{"data": "encrypted-with-old-key"}, domain.MergeReplace)

	rotated := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(inner)
	got, err := rotated.GetState(context.Background(), query)
	if err != nil {
		t.Fatalf("load with fallback key failed: %v", err)
	}
	if got["data"] != "encrypted-with-old-key" {
		t.Errorf("unexpected data: %v", got["data"])
	}

	wrong := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey})(inner)
	if _, err := wrong.GetState(context.Background(), query); err == nil {
		t.Error("expected failure without the old key")
	}
}

func TestEncryptionMiddleware_RejectsPlainState(t *testing.T) {
	inner := memory.NewStore()
	write(t, inner, map[string]any{"plain": "x"}, domain.MergeReplace)

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(inner)
	_, err := secure.GetState(context.Background(), domain.StateQuery{Namespace: domain.NamespaceMod, Ref: ref})
	if err == nil || !strings.Contains(err.Error(), "encrypted envelope") {
		t.Fatalf("expected envelope error, got %v", err)
	}
}

func TestEncryptionConfig_Validate(t *testing.T) {
	if err := (middleware.EncryptionConfig{ActiveKey: []byte("short")}).Validate(); err == nil {
		t.Error("expected short key to be rejected")
	}
}
