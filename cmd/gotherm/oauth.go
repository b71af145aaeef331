package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/joshp123/gotherm/internal/config"
	"github.com/joshp123/gotherm/internal/oauth"
	"github.com/joshp123/gotherm/internal/plugins"
)

// oauthMain provisions refresh tokens offline, before the daemon ever
// starts: auth-code runs the browser flow, persist re-syncs an existing
// state file to the configured stores.
func oauthMain(args []string) {
	if len(args) == 0 {
		oauthUsage()
		os.Exit(2)
	}
	switch args[0] {
	case "auth-code":
		authCodeCmd(args[1:])
	case "persist":
		persistCmd(args[1:])
	default:
		oauthUsage()
		os.Exit(2)
	}
}

func oauthUsage() {
	fmt.Println("gotherm oauth <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  auth-code --redirect-url <url> [--provider <id>] [--config <path>] [--no-open]")
	fmt.Println("  persist --state <path> [--provider <id>] [--config <path>]")
}

type persistOpts struct {
	statePath  string // override for the declaration's state path
	skipBlob   bool
	jsonOut    bool
	printToken bool
}

type persistReport struct {
	Provider     string `json:"provider"`
	StatePath    string `json:"state_path"`
	BlobSaved    bool   `json:"blob_saved"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func authCodeCmd(args []string) {
	flags := flag.NewFlagSet("auth-code", flag.ExitOnError)
	provider := flags.String("provider", "netatmo", "OAuth provider ID")
	redirectURL := flags.String("redirect-url", "", "Redirect URL registered with the provider")
	configPath := flags.String("config", config.DefaultPath, "Path to config.yaml")
	bootstrapFile := flags.String("bootstrap-file", "", "Override bootstrap file path")
	statePath := flags.String("state-path", "", "Override persisted state path")
	noOpen := flags.Bool("no-open", false, "Do not open the browser automatically")
	skipBlob := flags.Bool("skip-blob", false, "Skip the blob store mirror")
	jsonOut := flags.Bool("json", false, "Output JSON")
	printToken := flags.Bool("print-token", false, "Include the refresh token in the output")
	timeout := flags.Duration("timeout", 5*time.Minute, "Time allowed for the browser flow")
	_ = flags.Parse(args)

	if *redirectURL == "" {
		oauthUsage()
		os.Exit(2)
	}

	cfg, decl := loadDeclaration(*configPath, *provider)

	bootstrapPath := *bootstrapFile
	if bootstrapPath == "" {
		path, err := config.BootstrapPathForProvider(cfg, *provider)
		if err != nil {
			fatal("oauth", err)
		}
		bootstrapPath = path
	}
	boot, err := oauth.LoadBootstrap(bootstrapPath)
	if err != nil {
		fatal("oauth", err)
	}

	conf := &oauth2.Config{
		ClientID:     boot.ClientID,
		ClientSecret: boot.ClientSecret,
		RedirectURL:  *redirectURL,
		Scopes:       strings.Fields(decl.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:  decl.AuthorizeURL,
			TokenURL: decl.TokenURL,
		},
	}

	nonce, err := randomNonce()
	if err != nil {
		fatal("oauth", err)
	}
	authURL := conf.AuthCodeURL(nonce, oauth2.AccessTypeOffline)
	fmt.Fprintln(os.Stderr, "Open this URL to authorize:")
	fmt.Fprintln(os.Stderr, authURL)
	if !*noOpen {
		_ = openBrowser(authURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	code, err := captureCode(ctx, *redirectURL, nonce)
	if err != nil {
		fatal("oauth", err)
	}
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		fatal("oauth", err)
	}
	if token.RefreshToken == "" {
		fatal("oauth", errors.New("provider returned no refresh_token; check scope and redirect URL"))
	}

	state := oauth.State{
		SchemaVersion: oauth.SchemaVersion,
		ClientID:      boot.ClientID,
		ClientSecret:  boot.ClientSecret,
		RefreshToken:  token.RefreshToken,
		Scope:         decl.Scope,
	}
	report, err := saveState(ctx, cfg, decl, state, persistOpts{
		statePath:  *statePath,
		skipBlob:   *skipBlob,
		jsonOut:    *jsonOut,
		printToken: *printToken,
	})
	if err != nil {
		fatal("oauth", err)
	}
	emitReport(report, *jsonOut)
}

func persistCmd(args []string) {
	flags := flag.NewFlagSet("persist", flag.ExitOnError)
	provider := flags.String("provider", "netatmo", "OAuth provider ID")
	stateFile := flags.String("state", "", "Path to an OAuth state file")
	configPath := flags.String("config", config.DefaultPath, "Path to config.yaml")
	skipBlob := flags.Bool("skip-blob", false, "Skip the blob store mirror")
	jsonOut := flags.Bool("json", false, "Output JSON")
	_ = flags.Parse(args)

	if *stateFile == "" {
		oauthUsage()
		os.Exit(2)
	}

	cfg, decl := loadDeclaration(*configPath, *provider)
	state, err := oauth.LoadState(*stateFile)
	if err != nil {
		fatal("oauth", err)
	}

	report, err := saveState(context.Background(), cfg, decl, state, persistOpts{
		skipBlob: *skipBlob,
		jsonOut:  *jsonOut,
	})
	if err != nil {
		fatal("oauth", err)
	}
	emitReport(report, *jsonOut)
}

// loadDeclaration resolves a provider's OAuth declaration through the
// plugin registry, so the command always matches what the daemon would
// use.
func loadDeclaration(configPath, provider string) (*config.Config, oauth.Declaration) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal("oauth", err)
	}

	var known []string
	for _, plugin := range plugins.Compiled(cfg, zap.NewNop().Sugar()) {
		decl := plugin.OAuthDeclaration()
		if decl.Provider == provider {
			return cfg, decl
		}
		if decl.Provider != "" {
			known = append(known, decl.Provider)
		}
	}

	if len(known) == 0 {
		fatal("oauth", fmt.Errorf("no providers configured; is the %s section present in config?", provider))
	}
	fatal("oauth", fmt.Errorf("unknown provider %q (configured: %s)", provider, strings.Join(known, ", ")))
	return nil, oauth.Declaration{}
}

func saveState(ctx context.Context, cfg *config.Config, decl oauth.Declaration, state oauth.State, opts persistOpts) (persistReport, error) {
	path := decl.StatePath
	if opts.statePath != "" {
		path = opts.statePath
	}
	if err := oauth.WriteState(path, state); err != nil {
		return persistReport{}, err
	}
	report := persistReport{Provider: decl.Provider, StatePath: path}

	if !opts.skipBlob {
		store, err := oauth.NewS3Store(cfg.OAuth)
		if err != nil {
			return report, err
		}
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return report, err
		}
		if err := store.Save(ctx, decl.Provider, data); err != nil {
			return report, fmt.Errorf("blob mirror: %w", err)
		}
		report.BlobSaved = true
	}

	if opts.printToken {
		report.RefreshToken = state.RefreshToken
	}
	return report, nil
}

func emitReport(report persistReport, jsonOut bool) {
	if jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fatal("oauth", err)
		}
		fmt.Println(string(data))
		return
	}
	fmt.Printf("State file: %s\n", report.StatePath)
	fmt.Printf("Blob persisted: %t\n", report.BlobSaved)
	if report.RefreshToken != "" {
		fmt.Printf("Refresh token: %s\n", report.RefreshToken)
	}
}

// captureCode waits for the provider redirect. Loopback http redirects
// get a local listener; anything else falls back to a manual paste.
func captureCode(ctx context.Context, redirectURL, nonce string) (string, error) {
	target, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}

	if target.Scheme == "http" && isLoopback(target.Hostname()) {
		code, err := listenForRedirect(ctx, target, nonce)
		if err == nil {
			return code, nil
		}
		fmt.Fprintf(os.Stderr, "Listener failed (%v); paste the code instead.\n", err)
	}

	fmt.Fprint(os.Stderr, "Paste the authorization code (or the full redirect URL): ")
	return readPastedCode()
}

func listenForRedirect(ctx context.Context, target *url.URL, nonce string) (string, error) {
	type outcome struct {
		code string
		err  error
	}
	results := make(chan outcome, 1)

	deliver := func(o outcome) {
		select {
		case results <- o:
		default:
		}
	}

	srv := &http.Server{
		Addr: target.Host,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if target.Path != "" && r.URL.Path != target.Path {
				http.NotFound(w, r)
				return
			}
			q := r.URL.Query()
			switch {
			case q.Get("error") != "":
				deliver(outcome{err: fmt.Errorf("authorization refused: %s", q.Get("error"))})
				fmt.Fprint(w, "Authorization failed. You can close this window.")
			case q.Get("state") != nonce:
				deliver(outcome{err: errors.New("state parameter mismatch")})
				fmt.Fprint(w, "State mismatch. You can close this window.")
			case q.Get("code") == "":
				deliver(outcome{err: errors.New("redirect carried no code")})
				fmt.Fprint(w, "Missing authorization code. You can close this window.")
			default:
				deliver(outcome{code: q.Get("code")})
				fmt.Fprint(w, "Authorization received. You can close this window.")
			}
		}),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(outcome{err: err})
		}
	}()
	defer srv.Close()

	select {
	case <-ctx.Done():
		return "", errors.New("authorization timed out")
	case o := <-results:
		return o.code, o.err
	}
}

func readPastedCode() (string, error) {
	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", errors.New("no code provided")
	}
	line = strings.TrimSpace(line)
	if parsed, err := url.Parse(line); err == nil {
		if code := parsed.Query().Get("code"); code != "" {
			return code, nil
		}
	}
	if line == "" {
		return "", errors.New("no code provided")
	}
	return line, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func openBrowser(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target).Start()
	case "linux":
		return exec.Command("xdg-open", target).Start()
	default:
		return nil
	}
}
