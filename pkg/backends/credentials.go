package backends

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// DefaultCredentialsFile is the key file looked up relative to the working
// directory when CLEM_KEY_FILE is not set.
const DefaultCredentialsFile = "key.json"

const credentialsFileEnv = "CLEM_KEY_FILE"

// Credential is one backend's entry in the key file. Only APIKey is required
// everywhere; the slurk backend additionally needs URI.
type Credential struct {
	APIKey string `json:"api_key"`
	URI    string `json:"uri,omitempty"`
}

// LoadCredentials reads the credential record for a backend from the default
// key file (overridable via CLEM_KEY_FILE).
func LoadCredentials(backend string) (Credential, error) {
	path := os.Getenv(credentialsFileEnv)
	if path == "" {
		path = DefaultCredentialsFile
	}
	return LoadCredentialsFrom(path, backend)
}

// LoadCredentialsFrom reads the credential record for a backend from the
// given key file. Missing file, missing backend entry and missing api_key are
// all fatal and name the expected shape.
func LoadCredentialsFrom(path string, backend string) (Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credential{}, errors.Wrapf(err, "reading credentials file %q; see README", path)
	}
	var creds map[string]Credential
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credential{}, errors.Wrapf(err, "parsing credentials file %q", path)
	}
	entry, ok := creds[backend]
	if !ok {
		return Credential{}, errors.Errorf("no %q entry in %q; see README", backend, path)
	}
	if entry.APIKey == "" {
		return Credential{}, errors.Errorf("no 'api_key' for backend %q in %q; see README", backend, path)
	}
	return entry, nil
}
