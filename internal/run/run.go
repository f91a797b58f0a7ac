// Package run wires the merge pipeline: locate the authoritative
// checklist per profile, extract unresolved V-keys, and merge them into
// the workbook and the answer-key documents. One invocation, one pass,
// no concurrent writers.
package run

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stigtools/estig/internal/answerkey"
	"github.com/stigtools/estig/internal/cklb"
	"github.com/stigtools/estig/internal/history"
	"github.com/stigtools/estig/internal/locate"
	"github.com/stigtools/estig/internal/log"
	"github.com/stigtools/estig/internal/model"
	"github.com/stigtools/estig/internal/report"
	"github.com/stigtools/estig/internal/workbook"
)

// UpdateOptions parameterize one merge invocation.
type UpdateOptions struct {
	Workbook string
	ScanDir  string
	XMLDir   string // empty disables the XML phase
	Comment  string
	History  string // empty disables the ledger
}

// Update runs the whole pipeline. Per-file and per-profile problems are
// logged and skipped; only persistence failures and cancellation abort
// the remaining work. The workbook is saved at most once, after all
// profiles; each XML document is saved right after its own merge.
func Update(ctx context.Context, opts UpdateOptions) error {
	runID := uuid.New().String()
	ctx = log.ContextAttrs(ctx, slog.String("run", runID))

	candidates, err := locate.Newest(ctx, opts.ScanDir)
	if err != nil {
		return fmt.Errorf("locating scans in %s: %w", opts.ScanDir, err)
	}

	keys := extractKeys(ctx, candidates)
	if len(keys) == 0 {
		slog.InfoContext(ctx, "no unresolved findings, nothing to merge")
		return nil
	}

	profiles := make([]string, 0, len(keys))
	for p := range keys {
		profiles = append(profiles, p)
	}
	sort.Strings(profiles)

	if err := mergeWorkbook(ctx, opts, profiles, keys); err != nil {
		return err
	}
	if opts.XMLDir == "" {
		return nil
	}
	return mergeAnswerKeys(ctx, opts, runID, profiles, keys)
}

// extractKeys parses each chosen checklist and keeps only profiles with
// at least one unresolved finding. Parse failures here are skippable: the
// file was readable moments ago during location, but the walk must not
// die if it vanished or got truncated since.
func extractKeys(ctx context.Context, candidates map[string]locate.Candidate) map[string][]string {
	keys := make(map[string][]string, len(candidates))
	for profile, cand := range candidates {
		fctx := log.ContextAttrs(ctx, slog.String("path", cand.Path), slog.String("profile", profile))
		rec, err := cklb.ParseFile(cand.Path)
		if err != nil {
			slog.WarnContext(fctx, "skipping checklist", "err", err)
			continue
		}
		ks := cklb.NotReviewed(rec)
		if len(ks) == 0 {
			slog.DebugContext(fctx, "no unresolved findings")
			continue
		}
		keys[profile] = ks
	}
	return keys
}

func mergeWorkbook(ctx context.Context, opts UpdateOptions, profiles []string, keys map[string][]string) error {
	wb, err := workbook.Open(opts.Workbook)
	if err != nil {
		return err
	}
	defer func() {
		_ = wb.Close()
	}()

	total := 0
	for _, profile := range profiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		pctx := log.ContextAttrs(ctx, slog.String("profile", profile))
		added, err := wb.Merge(profile, keys[profile], opts.Comment)
		switch {
		case errors.Is(err, model.ErrMissingSheet):
			slog.WarnContext(pctx, "sheet missing, tabular merge skipped")
			continue
		case err != nil:
			return err
		}
		if len(added) > 0 {
			slog.InfoContext(pctx, "workbook rows added", "count", len(added))
			total += len(added)
		}
	}

	// an untouched workbook is not rewritten, so re-runs leave no trace
	if total == 0 {
		return nil
	}
	return wb.Save()
}

func mergeAnswerKeys(ctx context.Context, opts UpdateOptions, runID string, profiles []string, keys map[string][]string) error {
	if err := os.MkdirAll(opts.XMLDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", opts.XMLDir, err)
	}

	var db *sql.DB
	if opts.History != "" {
		var err error
		db, err = history.Open(ctx, opts.History)
		if err != nil {
			return fmt.Errorf("opening history %s: %w", opts.History, err)
		}
		defer func() {
			_ = db.Close()
		}()
	}

	for _, profile := range profiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		pctx := log.ContextAttrs(ctx, slog.String("profile", profile))
		now := time.Now()
		added, err := answerkey.Merge(opts.XMLDir, profile, keys[profile], opts.Comment, now)
		if err != nil {
			return err
		}
		if len(added) == 0 {
			continue
		}
		slog.InfoContext(pctx, "answer keys added", "keys", strings.Join(added, ", "))
		if db != nil {
			err := history.Record(ctx, db, history.Run{
				RunID:   runID,
				Profile: profile,
				Added:   added,
				RanAt:   now,
			})
			if err != nil {
				slog.WarnContext(pctx, "history not recorded", "err", err)
			}
		}
	}
	return nil
}

// Report aggregates every checklist under root and writes the Markdown
// report to out.
func Report(ctx context.Context, root, out string, limit int) error {
	paths, err := collectChecklists(root)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no .cklb files found under %s", root)
	}

	sum, err := report.Aggregate(ctx, paths, limit)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating report %s: %w", out, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return report.RenderMarkdown(f, sum, time.Now())
}

// Export regenerates the answer-key documents from the workbook rows.
func Export(ctx context.Context, workbookPath, xmlDir string) error {
	if err := os.MkdirAll(xmlDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", xmlDir, err)
	}

	wb, err := workbook.Open(workbookPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = wb.Close()
	}()

	for _, sheet := range wb.Sheets() {
		if err := ctx.Err(); err != nil {
			return err
		}
		pctx := log.ContextAttrs(ctx, slog.String("profile", sheet))
		rows, err := wb.AnswerRows(sheet)
		if err != nil {
			return err
		}
		added, err := answerkey.Export(xmlDir, sheet, rows, time.Now())
		if err != nil {
			return err
		}
		if len(added) > 0 {
			slog.InfoContext(pctx, "answer keys exported", "entries", strings.Join(added, ", "))
		} else {
			slog.DebugContext(pctx, "no new entries")
		}
	}
	return nil
}

func collectChecklists(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".cklb") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return paths, nil
}
