// Package oauth keeps provider refresh tokens alive for the daemon's
// lifetime and mirrors them to disk and an S3-compatible store, so a
// reprovisioned host can recover its credential without a new browser
// flow.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/oauth2"
)

var ErrScopeMismatch = errors.New("oauth: persisted scope does not match declaration")

// tokenSlack is how close to expiry a cached access token may get before
// AccessToken refuses to hand it out.
const tokenSlack = 30 * time.Second

// Manager owns one provider's token lifecycle: it seeds refresh state
// from disk, blob storage, or the bootstrap file, keeps an access token
// warm on a ticker, and write-through-persists every rotation.
type Manager struct {
	decl  Declaration
	store BlobStore
	conf  *oauth2.Config
	http  *http.Client

	mu      sync.Mutex
	access  string
	expiry  time.Time
	refresh string
	scope   string
	busy    bool
}

func NewManager(decl Declaration, bootstrapPath string, store BlobStore) (*Manager, error) {
	if err := decl.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("oauth: blob store is required")
	}
	if bootstrapPath == "" {
		return nil, errors.New("oauth: bootstrap path is required")
	}
	boot, err := LoadBootstrap(bootstrapPath)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		decl:  decl,
		store: store,
		http:  &http.Client{Timeout: 15 * time.Second},
		conf: &oauth2.Config{
			ClientID:     boot.ClientID,
			ClientSecret: boot.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  decl.AuthorizeURL,
				TokenURL: decl.TokenURL,
			},
			Scopes: strings.Fields(decl.Scope),
		},
	}
	if err := m.seed(boot); err != nil {
		return nil, err
	}
	return m, nil
}

func (d Declaration) validate() error {
	switch {
	case d.Provider == "":
		return errors.New("oauth: declaration has no provider")
	case d.TokenURL == "":
		return errors.New("oauth: declaration has no token URL")
	case d.Scope == "":
		return errors.New("oauth: declaration has no scope")
	case d.StatePath == "":
		return errors.New("oauth: declaration has no state path")
	case !filepath.IsAbs(d.StatePath):
		return fmt.Errorf("oauth: state path %q is not absolute", d.StatePath)
	}
	return nil
}

// seed resolves the initial refresh token. Precedence: local state file,
// then the blob mirror, then the bootstrap file itself. Whichever source
// wins, the credential is re-synced to both stores so they converge.
func (m *Manager) seed(boot Bootstrap) error {
	state, err := m.recoverState(boot)
	if err != nil {
		return err
	}

	state.ClientID = boot.ClientID
	state.ClientSecret = boot.ClientSecret
	if state.Scope == "" {
		state.Scope = m.decl.Scope
	}
	if state.Scope != m.decl.Scope {
		scopeMismatch.WithLabelValues(m.decl.Provider).Inc()
		return ErrScopeMismatch
	}

	m.refresh = state.RefreshToken
	m.scope = state.Scope
	return m.persist(context.Background(), state)
}

func (m *Manager) recoverState(boot Bootstrap) (State, error) {
	local, err := LoadState(m.decl.StatePath)
	if err == nil {
		if err := checkStateOwnership(m.decl.StatePath); err != nil {
			return State{}, err
		}
		return local, nil
	}
	if !errors.Is(err, ErrStateNotFound) {
		return State{}, err
	}

	data, err := m.store.Load(context.Background(), m.decl.Provider)
	if err == nil {
		return ParseState(data)
	}
	if !errors.Is(err, ErrBlobNotFound) {
		return State{}, err
	}

	if boot.RefreshToken == "" {
		return State{}, errors.New("oauth: no state anywhere and bootstrap has no refresh_token; run gotherm oauth")
	}
	return State{
		SchemaVersion: SchemaVersion,
		RefreshToken:  boot.RefreshToken,
		Scope:         boot.Scope,
	}, nil
}

// Start refreshes the access token once synchronously, then keeps it
// warm on a ticker until ctx ends. A non-positive interval disables the
// loop entirely; AccessToken then always fails.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.maybeRefresh(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.maybeRefresh(ctx)
			}
		}
	}()
}

// AccessToken hands out the cached token while it has comfortable life
// left. It never blocks on the network; the refresh loop owns that.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.access != "" && time.Until(m.expiry) > tokenSlack {
		return m.access, nil
	}
	tokenValid.WithLabelValues(m.decl.Provider).Set(0)
	return "", errors.New("oauth: no valid access token")
}

// TriggerRefresh requests an out-of-band refresh, e.g. after a 401.
func (m *Manager) TriggerRefresh(ctx context.Context) {
	if !m.claim() {
		return
	}
	go func() {
		defer m.release()
		_ = m.exchange(ctx)
	}()
}

func (m *Manager) maybeRefresh(ctx context.Context) {
	m.mu.Lock()
	fresh := m.access != "" && time.Until(m.expiry) > tokenSlack
	m.mu.Unlock()
	if fresh || !m.claim() {
		return
	}
	defer m.release()
	_ = m.exchange(ctx)
}

func (m *Manager) claim() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return false
	}
	m.busy = true
	return true
}

func (m *Manager) release() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

// exchange trades the refresh token for a new access token and persists
// the rotated credential before reporting success.
func (m *Manager) exchange(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.http)

	m.mu.Lock()
	seedTok := &oauth2.Token{RefreshToken: m.refresh}
	m.mu.Unlock()

	tok, err := m.conf.TokenSource(ctx, seedTok).Token()
	if err != nil {
		refreshFailure.WithLabelValues(m.decl.Provider).Inc()
		tokenValid.WithLabelValues(m.decl.Provider).Set(0)
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("oauth: token endpoint returned %d: %s",
				retrieveErr.Response.StatusCode, strings.TrimSpace(string(retrieveErr.Body)))
		}
		return err
	}

	m.mu.Lock()
	m.access = tok.AccessToken
	m.expiry = tok.Expiry
	if tok.RefreshToken != "" {
		m.refresh = tok.RefreshToken
	}
	state := State{
		SchemaVersion: SchemaVersion,
		ClientID:      m.conf.ClientID,
		ClientSecret:  m.conf.ClientSecret,
		RefreshToken:  m.refresh,
		Scope:         m.scope,
	}
	m.mu.Unlock()

	if err := m.persist(ctx, state); err != nil {
		refreshFailure.WithLabelValues(m.decl.Provider).Inc()
		return err
	}
	refreshSuccess.WithLabelValues(m.decl.Provider).Inc()
	tokenValid.WithLabelValues(m.decl.Provider).Set(1)
	return nil
}

// persist writes state to disk, then mirrors it to the blob store. A
// mirror failure is reported via metrics but does not fail the write;
// the local copy is authoritative.
func (m *Manager) persist(ctx context.Context, state State) error {
	if err := WriteState(m.decl.StatePath, state); err != nil {
		return fmt.Errorf("oauth: persist state: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, m.decl.Provider, data); err != nil {
		remotePersistOK.WithLabelValues(m.decl.Provider).Set(0)
		return nil
	}
	remotePersistOK.WithLabelValues(m.decl.Provider).Set(1)
	return nil
}

func checkStateOwnership(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		return fmt.Errorf("oauth: state file %s has mode %04o, want 0600", path, perm)
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok && int(st.Uid) != os.Geteuid() {
		return fmt.Errorf("oauth: state file %s is not owned by uid %d", path, os.Geteuid())
	}
	return nil
}
