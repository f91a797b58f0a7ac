// Package locate finds the authoritative checklist per profile: the walk
// never aborts on a bad file, and among all checklists declaring the same
// profile the one with the greatest filename timestamp wins.
package locate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/stigtools/estig/internal/log"
	"github.com/stigtools/estig/internal/model"
)

// timestampRx matches the fixed-width timestamp right before the
// extension, e.g. Evaluate-STIG_RHEL8_20240101-120000.cklb.
var timestampRx = regexp.MustCompile(`(?i)(\d{8}-\d{6})\.cklb$`)

// Candidate is the chosen checklist for one profile.
type Candidate struct {
	Path      string
	Timestamp string
	Profile   string
}

// Newest walks root recursively and returns, per profile, the checklist
// with the lexicographically greatest timestamp. Precondition: timestamps
// are fixed-width zero-padded YYYYMMDD-HHMMSS, so lexical order equals
// chronological order. Equal timestamps resolve to the last file seen in
// walk order; nothing may rely on that.
//
// Files without a timestamp, without the title prefix, or failing to
// parse are logged and skipped. Only a failure to read the root itself is
// an error.
func Newest(ctx context.Context, root string) (map[string]Candidate, error) {
	latest := make(map[string]Candidate)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if path == root {
				return err
			}
			slog.WarnContext(ctx, "walk error, skipping", "path", path, "err", err)
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".cklb") {
			return nil
		}

		fctx := log.ContextAttrs(ctx, slog.String("path", path))
		cand, err := examine(path, d.Name())
		if err != nil {
			switch {
			case errors.Is(err, model.ErrNoTimestamp), errors.Is(err, model.ErrTitlePrefix):
				slog.DebugContext(fctx, "skipping checklist", "err", err)
			default:
				slog.WarnContext(fctx, "unreadable checklist, skipping", "err", err)
			}
			return nil
		}

		if prev, ok := latest[cand.Profile]; !ok || cand.Timestamp >= prev.Timestamp {
			latest[cand.Profile] = cand
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

// examine classifies one file: model.ErrNoTimestamp when the name lacks
// the fixed-width timestamp, model.ErrTitlePrefix when the declared title
// lacks the required prefix, a read/parse error otherwise. Every error is
// skippable; the caller logs and moves on.
func examine(path, name string) (Candidate, error) {
	m := timestampRx.FindStringSubmatch(name)
	if m == nil {
		return Candidate{}, fmt.Errorf("%s: %w", name, model.ErrNoTimestamp)
	}

	profile, err := readProfile(path)
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{Path: path, Timestamp: m[1], Profile: profile}, nil
}

// readProfile decodes just the title field and strips the required
// prefix.
func readProfile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var head struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", err
	}
	profile, ok := strings.CutPrefix(head.Title, model.TitlePrefix)
	if !ok {
		return "", fmt.Errorf("%q: %w", head.Title, model.ErrTitlePrefix)
	}
	return profile, nil
}
