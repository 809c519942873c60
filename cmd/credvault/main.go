// ABOUTME: CLI for inspecting and managing the credvault credential store
// ABOUTME: Wires the storage provider, biometric gate, and migration prelude

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/credvault/internal/config"
	"github.com/2389/credvault/internal/gate"
	"github.com/2389/credvault/internal/keychain"
	"github.com/2389/credvault/internal/secrets"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	store, closer, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx := context.Background()

	// Migration prelude: runs once, idempotent, never fatal. A partial
	// failure is retried on the next invocation.
	if err := store.Migrate(ctx); err != nil {
		slog.Warn("schema migration incomplete", "error", err)
	}

	switch cmd {
	case "set":
		err = cmdSet(ctx, store, args)
	case "get":
		err = cmdGet(ctx, store, args)
	case "rm":
		err = cmdRm(ctx, store, args)
	case "status":
		err = cmdStatus(ctx, store)
	case "migrate":
		err = cmdMigrate(ctx, store)
	case "purge":
		err = cmdPurge(ctx, store)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the file named by CREDVAULT_CONFIG, falling back to
// defaults when no file is configured or present.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("CREDVAULT_CONFIG")
	if path == "" {
		home, _ := os.UserHomeDir()
		path = home + "/.config/credvault/config.yaml"
		if _, err := os.Stat(path); err != nil {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// openStore builds the credential store from the configured provider.
func openStore(cfg *config.Config) (*keychain.Store, io.Closer, error) {
	var provider keychain.SecretStore
	var closer io.Closer

	switch cfg.Storage.Backend {
	case "sqlite":
		passphrase := os.Getenv(cfg.Storage.PassphraseEnv)
		if passphrase == "" {
			return nil, nil, fmt.Errorf("%s is not set", cfg.Storage.PassphraseEnv)
		}
		db, err := secrets.NewSQLite(cfg.Storage.Path, []byte(passphrase))
		if err != nil {
			return nil, nil, fmt.Errorf("opening vault: %w", err)
		}
		provider = db
		closer = db
	case "keyring":
		provider = secrets.NewKeyring(cfg.Storage.KeyringService)
	case "memory":
		provider = secrets.NewMemory()
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	opts := []keychain.Option{}
	if cfg.Tokens.ValidityWindow > 0 {
		opts = append(opts, keychain.WithValidityWindow(cfg.Tokens.ValidityWindow))
	}
	if cfg.Tokens.BiometricPrompt {
		opts = append(opts, keychain.WithBiometricGate(&gate.Terminal{In: os.Stdin, Out: os.Stderr}))
	}

	return keychain.New(provider, opts...), closer, nil
}

func cmdSet(ctx context.Context, store *keychain.Store, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: credvault set <key> <value> [ttl]")
	}
	key, err := keychain.ParseKey(args[0])
	if err != nil {
		return err
	}

	if len(args) >= 3 {
		ttl, err := time.ParseDuration(args[2])
		if err != nil {
			return fmt.Errorf("parsing ttl %q: %w", args[2], err)
		}
		if err := store.StoreWithExpiration(ctx, key, args[1], time.Now().Add(ttl)); err != nil {
			return err
		}
	} else if err := store.Store(ctx, key, args[1]); err != nil {
		return err
	}

	fmt.Printf("%s stored %s\n", color.GreenString("✓"), key)
	return nil
}

func cmdGet(ctx context.Context, store *keychain.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: credvault get <key> [--protected]")
	}
	key, err := keychain.ParseKey(args[0])
	if err != nil {
		return err
	}

	protected := len(args) >= 2 && args[1] == "--protected"

	var value string
	var ok bool
	if protected {
		value, ok, err = store.RetrieveProtected(ctx, key)
	} else {
		value, ok, err = store.Retrieve(ctx, key)
	}
	if err != nil {
		return err
	}
	if !ok {
		if protected {
			return fmt.Errorf("access to %s was not approved", key)
		}
		return fmt.Errorf("no entry for %s", key)
	}

	fmt.Println(value)
	return nil
}

func cmdRm(ctx context.Context, store *keychain.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: credvault rm <key>")
	}
	key, err := keychain.ParseKey(args[0])
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, key); err != nil {
		return err
	}
	fmt.Printf("%s removed %s\n", color.GreenString("✓"), key)
	return nil
}

func cmdStatus(ctx context.Context, store *keychain.Store) error {
	status, err := store.MigrationStatus(ctx)
	if err != nil {
		return err
	}

	switch status.State {
	case keychain.StateNotRequired, keychain.StateCompleted:
		fmt.Printf("schema: %s (migration %s)\n", color.GreenString(status.To), status.State)
	default:
		fmt.Printf("schema: %s -> %s (migration %s)\n", status.From, status.To, color.YellowString(status.State.String()))
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tPRESENT\tEXPIRES\tSTATE")
	for _, key := range keychain.KnownKeys() {
		exists, err := store.Exists(ctx, key)
		if err != nil {
			return err
		}
		if !exists {
			fmt.Fprintf(w, "%s\t-\t-\t-\n", key)
			continue
		}

		expiry, err := store.TokenExpirationDate(ctx, key)
		if err != nil {
			return err
		}

		expiresCol := "never"
		stateCol := color.GreenString("valid")
		if expiry != nil {
			expiresCol = expiry.Local().Format(time.RFC3339)
			expired, err := store.IsTokenExpired(ctx, key)
			if err != nil {
				return err
			}
			if expired {
				stateCol = color.RedString("expired")
			}
		}
		fmt.Fprintf(w, "%s\tyes\t%s\t%s\n", key, expiresCol, stateCol)
	}
	return w.Flush()
}

func cmdMigrate(ctx context.Context, store *keychain.Store) error {
	// The prelude in main already ran; report the outcome.
	status, err := store.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	switch status.State {
	case keychain.StateNotRequired:
		fmt.Printf("%s schema already at %s\n", color.GreenString("✓"), status.To)
	case keychain.StateCompleted:
		fmt.Printf("%s migrated %s -> %s\n", color.GreenString("✓"), status.From, status.To)
	case keychain.StateFailed:
		return fmt.Errorf("migration from %s to %s failed; run again to retry remaining keys", status.From, status.To)
	default:
		fmt.Printf("migration %s (%s -> %s)\n", status.State, status.From, status.To)
	}
	return nil
}

func cmdPurge(ctx context.Context, store *keychain.Store) error {
	if err := store.DeleteAllTokens(ctx); err != nil {
		return err
	}
	fmt.Printf("%s all credentials removed\n", color.GreenString("✓"))
	return nil
}

func printUsage() {
	fmt.Println(`credvault - credential store for the health app tooling

Usage:
  credvault <command> [args]

Commands:
  set <key> <value> [ttl]   Store a credential, optionally with a TTL (e.g. 1h)
  get <key> [--protected]   Print a credential; --protected requires approval
  rm <key>                  Remove a credential
  status                    Show schema version and token expiries
  migrate                   Report the schema migration outcome
  purge                     Remove all credentials
  help                      Show this help

Keys: auth_token, refresh_token, user_credentials

Environment:
  CREDVAULT_CONFIG          Config file path (default ~/.config/credvault/config.yaml)
  CREDVAULT_PASSPHRASE      Sealing passphrase for the sqlite backend`)
}
