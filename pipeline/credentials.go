package pipeline

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Credentials is the provider -> field -> value map passed across the FFI
// boundary, matching the shape CallContext.UserCredentials/
// SystemCredentials decode back into on the plugin side (§6).
type Credentials map[string]map[string]string

// EncodeCredentials serializes creds into a self-describing binary blob. A
// nil or empty map still encodes to a valid, decodable blob so callers
// never need to special-case "no credentials".
func EncodeCredentials(creds Credentials) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(creds); err != nil {
		return nil, fmt.Errorf("pipeline: encode credentials: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCredentials reverses EncodeCredentials.
func DecodeCredentials(blob []byte) (Credentials, error) {
	if len(blob) == 0 {
		return Credentials{}, nil
	}
	var creds Credentials
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&creds); err != nil {
		return nil, fmt.Errorf("pipeline: decode credentials: %w", err)
	}
	return creds, nil
}

// MergeCredentials combines a tool's configured system credentials with
// per-request user credentials into the two blobs CallContext carries.
// User credentials never override system credentials for the same
// provider; they occupy the separate UserCredentials slot instead (§4.6
// step 2: the two are merged logically by the plugin, not overwritten by
// the host).
func MergeCredentials(system, user Credentials) (systemBlob, userBlob []byte, err error) {
	systemBlob, err = EncodeCredentials(system)
	if err != nil {
		return nil, nil, err
	}
	userBlob, err = EncodeCredentials(user)
	if err != nil {
		return nil, nil, err
	}
	return systemBlob, userBlob, nil
}
