package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCredentialFiles(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadCredentialsFromDir(t *testing.T) {
	dir := writeCredentialFiles(t, map[string]string{
		SecretKeyAccessKeyID:     "AKIAEXAMPLE",
		SecretKeySecretAccessKey: "secret",
		SecretKeySessionToken:    "token",
		SecretKeyRegion:          "eu-west-1",
	})

	creds, err := LoadCredentialsFromDir(dir)
	if err != nil {
		t.Fatalf("LoadCredentialsFromDir() error = %v", err)
	}
	if creds == nil {
		t.Fatal("LoadCredentialsFromDir() = nil, want credentials")
	}
	if creds.AccessKeyID != "AKIAEXAMPLE" {
		t.Errorf("AccessKeyID = %q", creds.AccessKeyID)
	}
	if creds.SecretAccessKey != "secret" {
		t.Errorf("SecretAccessKey = %q", creds.SecretAccessKey)
	}
	if creds.SessionToken != "token" {
		t.Errorf("SessionToken = %q", creds.SessionToken)
	}
	if creds.Region != "eu-west-1" {
		t.Errorf("Region = %q", creds.Region)
	}
}

func TestLoadCredentialsFromDirOptionalKeys(t *testing.T) {
	dir := writeCredentialFiles(t, map[string]string{
		SecretKeyAccessKeyID:     "AKIAEXAMPLE",
		SecretKeySecretAccessKey: "secret",
	})

	creds, err := LoadCredentialsFromDir(dir)
	if err != nil {
		t.Fatalf("LoadCredentialsFromDir() error = %v", err)
	}
	if creds.SessionToken != "" || creds.Region != "" || creds.CACert != nil {
		t.Errorf("optional fields should stay empty: %+v", creds)
	}
}

func TestLoadCredentialsFromDirHalfPair(t *testing.T) {
	dir := writeCredentialFiles(t, map[string]string{
		SecretKeyAccessKeyID: "AKIAEXAMPLE",
	})

	if _, err := LoadCredentialsFromDir(dir); err == nil {
		t.Error("LoadCredentialsFromDir() expected error for half a key pair")
	}
}

func TestLoadCredentialsFromDirMissing(t *testing.T) {
	creds, err := LoadCredentialsFromDir(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("LoadCredentialsFromDir() error = %v", err)
	}
	if creds != nil {
		t.Errorf("LoadCredentialsFromDir() = %+v, want nil for the default chain", creds)
	}
}

func TestCredentialsApply(t *testing.T) {
	cfg := S3ClientConfig{Region: "us-east-1"}

	var nilCreds *Credentials
	nilCreds.Apply(&cfg)
	if cfg.AccessKeyID != "" || cfg.Region != "us-east-1" {
		t.Errorf("nil Apply() changed config: %+v", cfg)
	}

	creds := &Credentials{
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secret",
		Region:          "eu-west-1",
	}
	creds.Apply(&cfg)
	if cfg.AccessKeyID != "AKIAEXAMPLE" || cfg.Region != "eu-west-1" {
		t.Errorf("Apply() did not copy credentials: %+v", cfg)
	}
}
