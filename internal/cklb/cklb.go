// Package cklb parses Evaluate-STIG .cklb checklist exports. A checklist
// is a single JSON object; only the fields consumed by the merge and
// report pipelines are decoded, everything else is ignored.
package cklb

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/stigtools/estig/internal/model"
)

type rawChecklist struct {
	Title    string `json:"title"`
	HostName string `json:"host_name"`
	Targets  []struct {
		HostName string `json:"host_name"`
	} `json:"targets"`
	TargetData struct {
		HostName string `json:"host_name"`
	} `json:"target_data"`
	Stigs []struct {
		StigName string `json:"stig_name"`
		Rules    []struct {
			GroupID string `json:"group_id"`
			VulnID  string `json:"vuln_id"`
			Status  string `json:"status"`
		} `json:"rules"`
	} `json:"stigs"`
}

// Parse decodes one checklist. The host is resolved through the fallback
// chain host_name, targets[0].host_name, target_data.host_name, and the
// fixed unknown sentinel when all are absent.
func Parse(data []byte) (model.ScanRecord, error) {
	var raw rawChecklist
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.ScanRecord{}, fmt.Errorf("cklb parse: %w", err)
	}

	rec := model.ScanRecord{
		Title: raw.Title,
		Host:  host(raw),
	}
	for _, s := range raw.Stigs {
		name := s.StigName
		if name == "" {
			name = "Unknown STIG"
		}
		section := model.Section{Name: name}
		for _, r := range s.Rules {
			id := strings.TrimSpace(r.GroupID)
			if id == "" {
				id = strings.TrimSpace(r.VulnID)
			}
			section.Findings = append(section.Findings, model.Finding{
				ID:     id,
				Status: r.Status,
			})
		}
		rec.Sections = append(rec.Sections, section)
	}
	return rec, nil
}

// ParseFile reads and parses a checklist from disk.
func ParseFile(path string) (model.ScanRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ScanRecord{}, fmt.Errorf("cklb read %s: %w", path, err)
	}
	return Parse(data)
}

// NotReviewed returns the V-keys of every unresolved finding in document
// order, across all sections. A key appearing unresolved in two sections
// is returned twice; deduplication is the merge planner's job. Findings
// without any identifier are dropped.
func NotReviewed(rec model.ScanRecord) []string {
	var out []string
	for _, s := range rec.Sections {
		for _, f := range s.Findings {
			if f.ID == "" || !model.Unresolved(f.Status) {
				continue
			}
			out = append(out, f.ID)
		}
	}
	return out
}

func host(raw rawChecklist) string {
	if raw.HostName != "" {
		return raw.HostName
	}
	if len(raw.Targets) > 0 && raw.Targets[0].HostName != "" {
		return raw.Targets[0].HostName
	}
	if raw.TargetData.HostName != "" {
		return raw.TargetData.HostName
	}
	return model.UnknownHost
}
