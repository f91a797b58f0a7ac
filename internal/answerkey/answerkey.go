// Package answerkey is the XML sink: one STIGComments document per
// profile, a Vuln element per V-key, an AnswerKey element per named
// policy binding. At most one audit comment lives in a document; it
// records only the latest run's additions.
package answerkey

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/stigtools/estig/internal/merge"
	"github.com/stigtools/estig/internal/model"
)

const (
	rootTag      = "STIGComments"
	vulnTag      = "Vuln"
	answerKeyTag = "AnswerKey"

	auditPrefix = "Script ran on "
	timeLayout  = "2006-01-02 15:04:05"
)

// Path returns the document location for a profile.
func Path(dir, profile string) string {
	return filepath.Join(dir, profile+".xml")
}

// Merge adds a Vuln element with a DEFAULT AnswerKey for every planned
// V-key not already present, then rewrites the single audit comment and
// saves. When nothing was added the file is left untouched, including the
// case where it did not exist: a freshly created empty document is never
// persisted.
func Merge(dir, profile string, incoming []string, comment string, now time.Time) ([]string, error) {
	if comment == "" {
		comment = model.DefaultComment
	}

	doc, root, err := loadOrCreate(dir, profile)
	if err != nil {
		return nil, err
	}

	existing := vulnIDs(root)
	plan := merge.Plan(existing, incoming)

	var added []string
	for _, id := range plan {
		if _, ok := existing[id]; ok {
			continue
		}
		appendVuln(root, id, model.DefaultAnswerKey, model.AnswerRow{
			ExpectedStatus:   model.StatusNotReviewed,
			ValidTrueStatus:  model.StatusNotAFinding,
			ValidTrueComment: comment,
		})
		existing[id] = struct{}{}
		added = append(added, id)
	}

	if len(added) == 0 {
		return nil, nil
	}

	stampAudit(root, auditPrefix+now.Format(timeLayout)+" – Added V-keys: "+strings.Join(added, ", "))
	if err := write(doc, dir, profile); err != nil {
		return added, err
	}
	return added, nil
}

// Export merges workbook rows into the profile document. Unlike Merge it
// honors per-row key names and statuses, and it skips a row only when its
// exact (Vuln ID, AnswerKey Name) pair already exists, so a second key
// under an existing Vuln is still added. Audit entries read "ID(KEY)".
func Export(dir, profile string, rows []model.AnswerRow, now time.Time) ([]string, error) {
	doc, root, err := loadOrCreate(dir, profile)
	if err != nil {
		return nil, err
	}

	var added []string
	for _, row := range rows {
		if row.VulnID == "" {
			continue
		}
		key := row.KeyName
		if key == "" {
			key = model.DefaultAnswerKey
		}

		vuln := findVuln(root, row.VulnID)
		if vuln == nil {
			vuln = root.CreateElement(vulnTag)
			vuln.CreateAttr("ID", row.VulnID)
		} else if hasAnswerKey(vuln, key) {
			continue
		}
		appendAnswerKey(vuln, key, row)
		added = append(added, fmt.Sprintf("%s(%s)", row.VulnID, key))
	}

	if len(added) == 0 {
		return nil, nil
	}

	stampAudit(root, auditPrefix+now.Format(timeLayout)+" – Added: "+strings.Join(added, ", "))
	if err := write(doc, dir, profile); err != nil {
		return added, err
	}
	return added, nil
}

func loadOrCreate(dir, profile string) (*etree.Document, *etree.Element, error) {
	path := Path(dir, profile)
	doc := etree.NewDocument()

	if _, err := os.Stat(path); err == nil {
		if err := doc.ReadFromFile(path); err != nil {
			return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		root := doc.SelectElement(rootTag)
		if root == nil {
			return nil, nil, fmt.Errorf("%s: missing %s root", path, rootTag)
		}
		return doc, root, nil
	}

	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(rootTag)
	root.CreateAttr("Name", profile)
	return doc, root, nil
}

func vulnIDs(root *etree.Element) map[string]struct{} {
	out := make(map[string]struct{})
	for _, v := range root.SelectElements(vulnTag) {
		if id := v.SelectAttrValue("ID", ""); id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

func findVuln(root *etree.Element, id string) *etree.Element {
	for _, v := range root.SelectElements(vulnTag) {
		if v.SelectAttrValue("ID", "") == id {
			return v
		}
	}
	return nil
}

func hasAnswerKey(vuln *etree.Element, name string) bool {
	for _, ak := range vuln.SelectElements(answerKeyTag) {
		if ak.SelectAttrValue("Name", "") == name {
			return true
		}
	}
	return false
}

func appendVuln(root *etree.Element, id, key string, row model.AnswerRow) {
	vuln := root.CreateElement(vulnTag)
	vuln.CreateAttr("ID", id)
	appendAnswerKey(vuln, key, row)
}

func appendAnswerKey(vuln *etree.Element, key string, row model.AnswerRow) {
	ak := vuln.CreateElement(answerKeyTag)
	ak.CreateAttr("Name", key)
	ak.CreateElement("ExpectedStatus").SetText(row.ExpectedStatus)
	ak.CreateElement("ValidationCode")
	ak.CreateElement("ValidTrueStatus").SetText(row.ValidTrueStatus)
	ak.CreateElement("ValidTrueComment").SetText(row.ValidTrueComment)
	ak.CreateElement("ValidFalseStatus")
	ak.CreateElement("ValidFalseComment")
}

// stampAudit removes every previous audit comment before appending the
// new one, keeping the document at exactly one trailer.
func stampAudit(root *etree.Element, text string) {
	for _, tok := range append([]etree.Token(nil), root.Child...) {
		if c, ok := tok.(*etree.Comment); ok && strings.HasPrefix(c.Data, auditPrefix) {
			root.RemoveChild(c)
		}
	}
	root.CreateComment(text)
}

func write(doc *etree.Document, dir, profile string) error {
	path := Path(dir, profile)
	doc.Indent(2)
	if err := doc.WriteToFile(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
