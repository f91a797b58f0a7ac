// Package report is the read-only aggregation pipeline: parse every
// checklist independently, count findings per status, fold into host and
// corpus totals. It shares no state with the merge pipeline and never
// writes to a store.
package report

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/stigtools/estig/internal/cklb"
	"github.com/stigtools/estig/internal/log"
	"github.com/stigtools/estig/internal/model"
)

// SectionCount holds status counts for one STIG of one file.
type SectionCount struct {
	Name   string
	Counts map[string]int // normalized status -> count
	Total  int
}

// FileReport is the outcome for one checklist.
type FileReport struct {
	Path     string
	Host     string
	Total    int
	Sections []SectionCount
}

// Summary folds all file reports.
type Summary struct {
	Files  []FileReport
	Hosts  []string       // discovery order
	ByHost map[string]int // host -> total findings
	Corpus map[string]int // normalized status -> count across all files
}

// Aggregate parses paths concurrently, at most limit at a time, and folds
// the per-file counts. Files that fail to parse are logged and excluded;
// they never fail the aggregation. The fold itself is sequential and
// preserves the input order of paths.
func Aggregate(ctx context.Context, paths []string, limit int) (Summary, error) {
	if limit < 1 {
		limit = 1
	}

	results := make([]*FileReport, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, path := range paths {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			fctx := log.ContextAttrs(gctx, slog.String("path", path))
			rec, err := cklb.ParseFile(path)
			if err != nil {
				slog.WarnContext(fctx, "unreadable checklist, excluded from report", "err", err)
				return nil
			}
			fr := fileReport(path, rec)
			results[i] = &fr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	sum := Summary{
		ByHost: make(map[string]int),
		Corpus: make(map[string]int),
	}
	for _, fr := range results {
		if fr == nil {
			continue
		}
		sum.Files = append(sum.Files, *fr)
		if _, ok := sum.ByHost[fr.Host]; !ok {
			sum.Hosts = append(sum.Hosts, fr.Host)
		}
		sum.ByHost[fr.Host] += fr.Total
		for _, sec := range fr.Sections {
			for status, n := range sec.Counts {
				sum.Corpus[status] += n
			}
		}
	}
	return sum, nil
}

func fileReport(path string, rec model.ScanRecord) FileReport {
	fr := FileReport{Path: path, Host: rec.Host}
	for _, s := range rec.Sections {
		sec := SectionCount{Name: s.Name, Counts: make(map[string]int)}
		for _, f := range s.Findings {
			sec.Counts[normalizeStatus(f.Status)]++
			sec.Total++
		}
		fr.Sections = append(fr.Sections, sec)
		fr.Total += sec.Total
	}
	return fr
}

func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// sortedStatuses returns the count keys in lexical order for stable
// rendering.
func sortedStatuses(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
