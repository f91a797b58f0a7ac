package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RenderMarkdown writes the findings report: totals by host, per-file
// detail, and an implementation percentage computed from the compliant
// (not_a_finding) versus open counts.
func RenderMarkdown(w io.Writer, s Summary, now time.Time) error {
	var b strings.Builder

	b.WriteString("# STIG Open Findings Summary Report\n\n")
	b.WriteString("## Summary by Host\n\n| Host | Total Findings |\n|------|----------------|\n")
	for _, host := range s.Hosts {
		fmt.Fprintf(&b, "| %s | %s |\n", host, pretty(s.ByHost[host]))
	}

	b.WriteString("\n## Detailed Findings by File\n\n")
	for _, fr := range s.Files {
		fmt.Fprintf(&b, "### File: `%s`\n- Host: **%s**\n", filepath.Base(fr.Path), fr.Host)
		for _, sec := range fr.Sections {
			fmt.Fprintf(&b, "  - STIG: *%s* — **%s** findings\n", sec.Name, pretty(sec.Total))
			for _, status := range sortedStatuses(sec.Counts) {
				fmt.Fprintf(&b, "    - %s: %s\n", titleCase(status), pretty(sec.Counts[status]))
			}
		}
		b.WriteString("\n")
	}

	compliant := s.Corpus["not_a_finding"]
	open := s.Corpus["open"]
	evaluated := compliant + open
	pct := 0.0
	if evaluated > 0 {
		pct = float64(compliant) / float64(evaluated) * 100
	}
	b.WriteString("## STIG Implementation Summary\n\n")
	fmt.Fprintf(&b, "- Total Evaluated: **%s**\n", pretty(evaluated))
	fmt.Fprintf(&b, "- Compliant (Not a Finding): **%s**\n", pretty(compliant))
	fmt.Fprintf(&b, "- Non-compliant (Open): **%s**\n", pretty(open))
	fmt.Fprintf(&b, "\n**Overall Implementation: %.2f%%**\n", pct)
	fmt.Fprintf(&b, "\n---\n_Report generated on %s_\n", now.Format("2006-01-02 15:04:05"))

	_, err := io.WriteString(w, b.String())
	return err
}

// pretty formats with thousands separators, 1234567 -> "1,234,567".
func pretty(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// titleCase renders a normalized status for humans:
// "not_a_finding" -> "Not A Finding".
func titleCase(status string) string {
	words := strings.Split(status, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
