// Package keyring stores agent signing keys on disk as JSON files, with
// optional passphrase encryption of the private key.
package keyring

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/eldtechnologies/attestlog/internal/crypto"
)

var (
	ErrKeyNotFound    = errors.New("key not found")
	ErrBadPassphrase  = errors.New("wrong passphrase or corrupted key file")
	ErrNeedPassphrase = errors.New("key is encrypted, passphrase required")
)

const (
	saltSize   = 16
	argonTime  = 1
	argonMem   = 64 * 1024
	argonLanes = 4
)

// KeyFile is the on-disk representation of one agent key. PrivateKey is
// the base64url seed+public bytes when Encrypted is false, otherwise the
// base64url of salt || nonce || ciphertext.
type KeyFile struct {
	KID        string `json:"kid"`
	AgentID    string `json:"agent_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	Encrypted  bool   `json:"encrypted"`
	CreatedAt  string `json:"created_at"`
}

// Keyring reads and writes key files under a single directory.
type Keyring struct {
	dir string
}

// Open ensures dir exists and returns a keyring over it.
func Open(dir string) (*Keyring, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("keyring: %w", err)
	}
	return &Keyring{dir: dir}, nil
}

// Dir returns the keyring directory.
func (k *Keyring) Dir() string {
	return k.dir
}

func (k *Keyring) path(agentID string) string {
	return filepath.Join(k.dir, fileName(agentID))
}

// fileName flattens an agent id into a safe file name.
func fileName(agentID string) string {
	r := strings.NewReplacer(":", "_", "/", "_", "\\", "_")
	return r.Replace(agentID) + ".json"
}

// Save writes the key pair for agentID, encrypting the private key when
// passphrase is non-empty. The file is created with mode 0600.
func (k *Keyring) Save(agentID string, kp *crypto.KeyPair, passphrase string) (*KeyFile, error) {
	priv := kp.PrivateKeyBytes()

	kf := &KeyFile{
		KID:       crypto.NewKeyID(),
		AgentID:   agentID,
		PublicKey: kp.PublicKeyB64URL(),
		CreatedAt: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
	}

	if passphrase == "" {
		kf.PrivateKey = base64.RawURLEncoding.EncodeToString(priv)
	} else {
		blob, err := seal(priv, passphrase)
		if err != nil {
			return nil, err
		}
		kf.PrivateKey = base64.RawURLEncoding.EncodeToString(blob)
		kf.Encrypted = true
	}

	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	if err := os.WriteFile(k.path(agentID), data, 0600); err != nil {
		return nil, fmt.Errorf("keyring: %w", err)
	}
	return kf, nil
}

// Load reads the key pair for agentID. passphrase may be empty for
// unencrypted keys; ErrNeedPassphrase is returned when the key is
// encrypted and none was given.
func (k *Keyring) Load(agentID, passphrase string) (*crypto.KeyPair, error) {
	data, err := os.ReadFile(k.path(agentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, agentID)
		}
		return nil, fmt.Errorf("keyring: %w", err)
	}

	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("keyring: parse %s: %w", fileName(agentID), err)
	}

	blob, err := base64.RawURLEncoding.DecodeString(kf.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("keyring: decode private key: %w", err)
	}

	priv := blob
	if kf.Encrypted {
		if passphrase == "" {
			return nil, ErrNeedPassphrase
		}
		priv, err = open(blob, passphrase)
		if err != nil {
			return nil, err
		}
	}

	return crypto.KeyPairFromPrivateKey(priv)
}

// List returns the agent ids of all stored keys.
func (k *Keyring) List() ([]string, error) {
	entries, err := os.ReadDir(k.dir)
	if err != nil {
		return nil, fmt.Errorf("keyring: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(k.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("keyring: %w", err)
		}
		var kf KeyFile
		if err := json.Unmarshal(data, &kf); err != nil {
			continue
		}
		if kf.AgentID != "" {
			ids = append(ids, kf.AgentID)
		}
	}
	return ids, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonLanes, chacha20poly1305.KeySize)
}

// seal encrypts plaintext under a key derived from the passphrase. The
// output is salt || nonce || ciphertext.
func seal(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// open decrypts a blob produced by seal.
func open(blob []byte, passphrase string) ([]byte, error) {
	if len(blob) < saltSize+chacha20poly1305.NonceSize {
		return nil, ErrBadPassphrase
	}
	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+chacha20poly1305.NonceSize]
	ct := blob[saltSize+chacha20poly1305.NonceSize:]

	aead, err := chacha20poly1305.New(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return plaintext, nil
}
