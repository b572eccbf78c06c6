// Command import-json copies the legacy JSON data files (xp.json,
// vcChannels.json, tickets.json, verifiedUsers.json, bannedWords.json) into
// the configured document store. Plaintext Twitch tokens in verifiedUsers
// are sealed on the way when ENCRYPTION_KEY is set.
//
// Usage:
//
//	import-json --src ./data [--store postgres] [--dry-run]
//
// Environment variables are the bot's own: STORE_BACKEND, DB_DSN,
// REDIS_ADDR, DATA_DIR and ENCRYPTION_KEY.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/onnwee/hundy-bot/account"
	"github.com/onnwee/hundy-bot/config"
	"github.com/onnwee/hundy-bot/crypto"
	"github.com/onnwee/hundy-bot/store"
)

// Report summarizes one import run.
type Report struct {
	Imported []string
	Skipped  []string
	Sealed   int
}

func main() {
	src := flag.String("src", "data", "directory holding the legacy JSON files")
	backend := flag.String("store", "", "target backend: file|postgres|redis (overrides STORE_BACKEND)")
	dryRun := flag.Bool("dry-run", false, "validate and report without writing")
	flag.Parse()

	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if *backend != "" {
		_ = os.Setenv("STORE_BACKEND", *backend)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	var enc crypto.Encryptor
	if cfg.EncryptionKey != "" {
		aes, err := crypto.NewAESEncryptor(cfg.EncryptionKey)
		if err != nil {
			slog.Error("failed to initialize encryptor", slog.Any("err", err))
			os.Exit(1)
		}
		enc = aes
	} else {
		slog.Warn("ENCRYPTION_KEY not set, tokens are imported as-is")
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	rep, err := importDir(ctx, st, enc, *src, *dryRun)
	if err != nil {
		slog.Error("import failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("import completed",
		slog.Bool("dry_run", *dryRun),
		slog.Any("imported", rep.Imported),
		slog.Any("skipped", rep.Skipped),
		slog.Int("tokens_sealed", rep.Sealed))
}

// importDir reads <name>.json for every known document from dir and writes
// it to st. Missing files are skipped; a malformed file aborts the run
// before anything is written.
func importDir(ctx context.Context, st *store.Store, enc crypto.Encryptor, dir string, dryRun bool) (Report, error) {
	var rep Report
	pending := map[string][]byte{}
	for _, d := range store.Documents {
		raw, err := os.ReadFile(filepath.Join(dir, d.Name+".json"))
		if errors.Is(err, fs.ErrNotExist) {
			rep.Skipped = append(rep.Skipped, d.Name)
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("read %s: %w", d.Name, err)
		}
		data := bytes.TrimSpace(jsonc.ToJSON(raw))
		if len(data) == 0 {
			data = []byte(d.Initial)
		}
		if !json.Valid(data) {
			return rep, fmt.Errorf("%s.json: invalid json", d.Name)
		}
		if d.Name == store.DocVerified {
			sealed, n, err := sealAccounts(enc, data)
			if err != nil {
				return rep, err
			}
			data, rep.Sealed = sealed, n
		}
		pending[d.Name] = data
	}

	for _, d := range store.Documents {
		data, ok := pending[d.Name]
		if !ok {
			continue
		}
		if !dryRun {
			if err := st.Replace(ctx, d.Name, data); err != nil {
				return rep, err
			}
		}
		slog.Info("document imported", slog.String("doc", d.Name), slog.Int("bytes", len(data)), slog.Bool("dry_run", dryRun))
		rep.Imported = append(rep.Imported, d.Name)
	}
	return rep, nil
}

func sealAccounts(enc crypto.Encryptor, data []byte) ([]byte, int, error) {
	var doc account.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", store.DocVerified, err)
	}
	n, err := account.SealAll(enc, doc)
	if err != nil {
		return nil, 0, err
	}
	if n == 0 {
		return data, 0, nil
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, 0, fmt.Errorf("encode %s: %w", store.DocVerified, err)
	}
	return out, n, nil
}
