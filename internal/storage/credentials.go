package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// SecretKey constants define the expected keys in storage credentials
// Secrets. The backup Job projects the Secret as files named after these
// keys.
const (
	// SecretKeyAccessKeyID is the key for the access key ID.
	SecretKeyAccessKeyID = "accessKeyId"
	// SecretKeySecretAccessKey is the key for the secret access key.
	SecretKeySecretAccessKey = "secretAccessKey" // #nosec G101 -- Secret key name, not a credential
	// SecretKeySessionToken is the optional key for session tokens.
	SecretKeySessionToken = "sessionToken"
	// SecretKeyRegion is the optional key for region override.
	SecretKeyRegion = "region"
	// SecretKeyCACert is the optional key for a custom CA certificate.
	SecretKeyCACert = "caCert"
)

// Credentials holds storage credentials loaded from a projected Secret.
type Credentials struct {
	// AccessKeyID is the access key for authentication.
	AccessKeyID string
	// SecretAccessKey is the secret key for authentication.
	SecretAccessKey string
	// SessionToken is an optional session token for temporary credentials.
	SessionToken string
	// Region is an optional region override.
	Region string
	// CACert is an optional PEM-encoded CA certificate.
	CACert []byte
}

// LoadCredentialsFromDir loads storage credentials from a directory of
// projected Secret files. A missing directory returns nil credentials,
// indicating the default credential chain should be used (e.g. workload
// identity). If one of the key pair is present, both must be.
func LoadCredentialsFromDir(dir string) (*Credentials, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials directory %q: %w", dir, err)
	}

	creds := &Credentials{}

	readKey := func(key string) (string, error) {
		data, err := os.ReadFile(filepath.Join(dir, key)) // #nosec G304 -- Directory comes from operator-controlled Job spec
		if err != nil {
			if os.IsNotExist(err) {
				return "", nil
			}
			return "", fmt.Errorf("failed to read credentials key %q: %w", key, err)
		}
		return string(data), nil
	}

	var err error
	if creds.AccessKeyID, err = readKey(SecretKeyAccessKeyID); err != nil {
		return nil, err
	}
	if creds.SecretAccessKey, err = readKey(SecretKeySecretAccessKey); err != nil {
		return nil, err
	}

	if (creds.AccessKeyID != "" && creds.SecretAccessKey == "") ||
		(creds.AccessKeyID == "" && creds.SecretAccessKey != "") {
		return nil, fmt.Errorf("credentials directory %q must contain both %s and %s, or neither",
			dir, SecretKeyAccessKeyID, SecretKeySecretAccessKey)
	}

	if creds.SessionToken, err = readKey(SecretKeySessionToken); err != nil {
		return nil, err
	}
	if creds.Region, err = readKey(SecretKeyRegion); err != nil {
		return nil, err
	}

	caCert, err := readKey(SecretKeyCACert)
	if err != nil {
		return nil, err
	}
	if caCert != "" {
		creds.CACert = []byte(caCert)
	}

	return creds, nil
}

// Apply copies loaded credentials onto a client config. Nil credentials
// leave the config untouched so the default chain applies.
func (c *Credentials) Apply(cfg *S3ClientConfig) {
	if c == nil {
		return
	}
	cfg.AccessKeyID = c.AccessKeyID
	cfg.SecretAccessKey = c.SecretAccessKey
	cfg.SessionToken = c.SessionToken
	if c.Region != "" {
		cfg.Region = c.Region
	}
	if len(c.CACert) > 0 {
		cfg.CACert = c.CACert
	}
}
