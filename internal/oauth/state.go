package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SchemaVersion tags persisted token state so format changes fail loudly
// instead of half-parsing.
const SchemaVersion = 1

var ErrStateNotFound = errors.New("oauth: no persisted state")

// State is the refresh-token record mirrored to disk and object storage.
// The provider rotates refresh tokens on exchange, so this is the only
// durable copy of the credential.
type State struct {
	SchemaVersion int    `json:"schema_version"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	RefreshToken  string `json:"refresh_token"`
	Scope         string `json:"scope"`
}

func (s State) Validate() error {
	if s.SchemaVersion != SchemaVersion {
		return fmt.Errorf("oauth state schema_version %d, want %d", s.SchemaVersion, SchemaVersion)
	}
	if s.ClientID == "" {
		return errors.New("oauth state has no client_id")
	}
	if s.RefreshToken == "" {
		return errors.New("oauth state has no refresh_token")
	}
	return nil
}

// Bootstrap carries the operator-seeded client credentials, plus an
// optional refresh token for installs provisioned out of band.
type Bootstrap struct {
	SchemaVersion int    `json:"schema_version,omitempty"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	RefreshToken  string `json:"refresh_token,omitempty"`
	Scope         string `json:"scope,omitempty"`
}

func (b Bootstrap) Validate() error {
	if b.SchemaVersion != 0 && b.SchemaVersion != SchemaVersion {
		return fmt.Errorf("bootstrap schema_version %d, want %d", b.SchemaVersion, SchemaVersion)
	}
	if b.ClientID == "" {
		return errors.New("bootstrap has no client_id")
	}
	return nil
}

// ParseState decodes and validates state bytes, e.g. a blob store object.
func ParseState(data []byte) (State, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parse oauth state: %w", err)
	}
	if err := st.Validate(); err != nil {
		return State{}, err
	}
	return st, nil
}

func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return State{}, ErrStateNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("read oauth state: %w", err)
	}
	return ParseState(data)
}

func LoadBootstrap(path string) (Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bootstrap{}, fmt.Errorf("read bootstrap: %w", err)
	}
	var boot Bootstrap
	if err := json.Unmarshal(data, &boot); err != nil {
		return Bootstrap{}, fmt.Errorf("parse bootstrap: %w", err)
	}
	if err := boot.Validate(); err != nil {
		return Bootstrap{}, err
	}
	return boot, nil
}

// WriteState persists state with owner-only permissions. The write goes
// through a temp file in the same directory so a crash never leaves a
// truncated credential behind.
func WriteState(path string, state State) error {
	if state.SchemaVersion == 0 {
		state.SchemaVersion = SchemaVersion
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode oauth state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("stage oauth state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("stage oauth state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
