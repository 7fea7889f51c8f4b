package keyring

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/eldtechnologies/attestlog/internal/verify"
)

// LoadTrust reads a trust map file: a JSON object mapping agent ids to
// base64url Ed25519 public keys.
func LoadTrust(path string) (verify.TrustedKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trust map: %w", err)
	}

	var trusted verify.TrustedKeys
	if err := json.Unmarshal(data, &trusted); err != nil {
		return nil, fmt.Errorf("trust map %s: %w", path, err)
	}
	return trusted, nil
}

// SaveTrust writes a trust map file. Object keys come out sorted, so the
// file diffs cleanly under version control.
func SaveTrust(path string, trusted verify.TrustedKeys) error {
	data, err := json.MarshalIndent(trusted, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0600)
}

// TrustFromKeyring builds a trust map from every key stored in the
// keyring.
func TrustFromKeyring(k *Keyring) (verify.TrustedKeys, error) {
	ids, err := k.List()
	if err != nil {
		return nil, err
	}

	trusted := make(verify.TrustedKeys, len(ids))
	for _, id := range ids {
		data, err := os.ReadFile(k.path(id))
		if err != nil {
			return nil, fmt.Errorf("trust map: %w", err)
		}
		var kf KeyFile
		if err := json.Unmarshal(data, &kf); err != nil {
			return nil, fmt.Errorf("trust map: parse %s: %w", fileName(id), err)
		}
		trusted[kf.AgentID] = kf.PublicKey
	}
	return trusted, nil
}
