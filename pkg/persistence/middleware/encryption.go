package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/ports"
)

// sealedPrefix marks an encrypted value in the underlying store.
const sealedPrefix = "enc:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// Validate checks key sizes.
func (c EncryptionConfig) Validate() error {
	if len(c.ActiveKey) != 32 {
		return errors.New("active key must be 32 bytes (AES-256)")
	}
	for i, k := range c.FallbackKeys {
		if len(k) != 32 {
			return fmt.Errorf("fallback key %d must be 32 bytes (AES-256)", i)
		}
	}
	return nil
}

// encryptionMiddleware seals every top-level value of a namespace with AES-GCM.
// Keys stay in the clear so the inner store can still diff writes and keep
// session variables on ClearPage.
type encryptionMiddleware struct {
	next   ports.PageStateStore
	config EncryptionConfig
	// mu serializes read-merge-write cycles; merging happens here because the
	// inner store only ever sees ciphertext.
	mu sync.Mutex
}

// NewEncryptionMiddleware creates a middleware that encrypts state values using AES-GCM.
// It panics on an invalid config; call Validate first for user-supplied keys.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if err := config.Validate(); err != nil {
		panic(err)
	}
	return func(next ports.PageStateStore) ports.PageStateStore {
		return &encryptionMiddleware{next: next, config: config}
	}
}

func (m *encryptionMiddleware) GetState(ctx context.Context, q domain.StateQuery) (map[string]any, error) {
	raw, err := m.next.GetState(ctx, q)
	if err != nil {
		return nil, err
	}
	return m.open(raw)
}

func (m *encryptionMiddleware) SetState(ctx context.Context, u domain.StateUpdate) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := domain.StateQuery{Namespace: u.Namespace, Ref: u.Ref}
	raw, err := m.next.GetState(ctx, query)
	if err != nil {
		return nil, err
	}
	prev, err := m.open(raw)
	if err != nil {
		return nil, err
	}
	next, err := domain.MergeState(prev, u.Data, u.MergeStrategy)
	if err != nil {
		return nil, err
	}

	sealed := make(map[string]any, len(next))
	for k, v := range next {
		// Unchanged values keep their ciphertext so the inner diff stays exact.
		if old, ok := prev[k]; ok && reflect.DeepEqual(old, v) {
			sealed[k] = raw[k]
			continue
		}
		s, err := m.seal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt %q: %w", k, err)
		}
		sealed[k] = s
	}

	if _, err := m.next.SetState(ctx, domain.StateUpdate{
		Namespace:     u.Namespace,
		Data:          sealed,
		MergeStrategy: domain.MergeReplace,
		Ref:           u.Ref,
	}); err != nil {
		return nil, err
	}
	return next, nil
}

// Subscribe decrypts the changed values before they reach listener.
func (m *encryptionMiddleware) Subscribe(listener ports.StateListener) func() {
	return m.next.Subscribe(func(ctx context.Context, event domain.StateChangeEvent) {
		if event.Changed != nil {
			changed := make(map[string]any, len(event.Changed))
			for k, v := range event.Changed {
				plain, err := m.openValue(v)
				if err != nil {
					plain = "***"
				}
				changed[k] = plain
			}
			event.Changed = changed
		}
		listener(ctx, event)
	})
}

func (m *encryptionMiddleware) DeclareVariables(modID string, policies map[string]domain.SyncPolicy) {
	m.next.DeclareVariables(modID, policies)
}

func (m *encryptionMiddleware) ClearPage(ctx context.Context) error {
	return m.next.ClearPage(ctx)
}

func (m *encryptionMiddleware) open(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		plain, err := m.openValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt %q: %w", k, err)
		}
		out[k] = plain
	}
	return out, nil
}

func (m *encryptionMiddleware) seal(v any) (string, error) {
	plainText, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return "", err
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (m *encryptionMiddleware) openValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, sealedPrefix) {
		// Fail secure: a configured store only ever holds sealed values.
		return nil, errors.New("value is missing its encrypted envelope")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(plainText, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted value: %w", err)
	}
	return out, nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
