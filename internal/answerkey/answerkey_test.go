package answerkey_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"

	"github.com/stigtools/estig/internal/answerkey"
	"github.com/stigtools/estig/internal/model"
)

var testTime = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func readDoc(t *testing.T, dir, profile string) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(answerkey.Path(dir, profile)))
	return doc
}

func auditComments(root *etree.Element) []string {
	var out []string
	for _, tok := range root.Child {
		if c, ok := tok.(*etree.Comment); ok && strings.HasPrefix(c.Data, "Script ran on ") {
			out = append(out, c.Data)
		}
	}
	return out
}

func TestMerge_CreatesDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	added, err := answerkey.Merge(dir, "RHEL8", []string{"V-2001"}, "", testTime)
	require.NoError(t, err)
	require.Equal(t, []string{"V-2001"}, added)

	doc := readDoc(t, dir, "RHEL8")
	root := doc.SelectElement("STIGComments")
	require.NotNil(t, root)
	require.Equal(t, "RHEL8", root.SelectAttrValue("Name", ""))

	vulns := root.SelectElements("Vuln")
	require.Len(t, vulns, 1)
	require.Equal(t, "V-2001", vulns[0].SelectAttrValue("ID", ""))

	keys := vulns[0].SelectElements("AnswerKey")
	require.Len(t, keys, 1)
	require.Equal(t, model.DefaultAnswerKey, keys[0].SelectAttrValue("Name", ""))
	require.Equal(t, model.StatusNotReviewed, keys[0].SelectElement("ExpectedStatus").Text())
	require.Equal(t, model.StatusNotAFinding, keys[0].SelectElement("ValidTrueStatus").Text())
	require.Equal(t, model.DefaultComment, keys[0].SelectElement("ValidTrueComment").Text())
	require.NotNil(t, keys[0].SelectElement("ValidationCode"))
	require.NotNil(t, keys[0].SelectElement("ValidFalseStatus"))
	require.NotNil(t, keys[0].SelectElement("ValidFalseComment"))

	comments := auditComments(root)
	require.Len(t, comments, 1)
	require.Contains(t, comments[0], "Added V-keys: V-2001")
	require.Contains(t, comments[0], "2024-03-15 10:30:00")
}

func TestMerge_NoDuplicateAnswerKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// same identifier twice within one run, then a whole second run
	_, err := answerkey.Merge(dir, "RHEL8", []string{"V-1001", "V-1001"}, "", testTime)
	require.NoError(t, err)
	added, err := answerkey.Merge(dir, "RHEL8", []string{"V-1001"}, "", testTime.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, added)

	root := readDoc(t, dir, "RHEL8").SelectElement("STIGComments")
	vulns := root.SelectElements("Vuln")
	require.Len(t, vulns, 1)
	require.Len(t, vulns[0].SelectElements("AnswerKey"), 1)
}

func TestMerge_AuditCommentSingleton(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i, id := range []string{"V-1", "V-2", "V-3"} {
		added, err := answerkey.Merge(dir, "Win11", []string{id}, "", testTime.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		require.Equal(t, []string{id}, added)
	}

	root := readDoc(t, dir, "Win11").SelectElement("STIGComments")
	require.Len(t, root.SelectElements("Vuln"), 3)

	comments := auditComments(root)
	require.Len(t, comments, 1)
	// only the latest run's additions are named
	require.Contains(t, comments[0], "Added V-keys: V-3")
	require.NotContains(t, comments[0], "V-1,")
}

func TestMerge_UntouchedOnEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// nothing added, file did not exist: no file is created
	added, err := answerkey.Merge(dir, "RHEL8", nil, "", testTime)
	require.NoError(t, err)
	require.Empty(t, added)
	_, err = os.Stat(answerkey.Path(dir, "RHEL8"))
	require.True(t, os.IsNotExist(err))

	// nothing added, file exists: bytes stay identical
	_, err = answerkey.Merge(dir, "RHEL8", []string{"V-1"}, "", testTime)
	require.NoError(t, err)
	before, err := os.ReadFile(answerkey.Path(dir, "RHEL8"))
	require.NoError(t, err)

	added, err = answerkey.Merge(dir, "RHEL8", []string{"V-1"}, "", testTime.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, added)
	after, err := os.ReadFile(answerkey.Path(dir, "RHEL8"))
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestExport_SecondKeyUnderExistingVuln(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := answerkey.Merge(dir, "RHEL8", []string{"V-1"}, "", testTime)
	require.NoError(t, err)

	rows := []model.AnswerRow{
		// exact (ID, DEFAULT) pair exists: skipped
		{VulnID: "V-1", KeyName: "DEFAULT", ExpectedStatus: "Open", ValidTrueStatus: "NotAFinding"},
		// same Vuln, new key: added
		{VulnID: "V-1", KeyName: "ALTERNATE", ExpectedStatus: "Open", ValidTrueStatus: "NotAFinding"},
		// new Vuln
		{VulnID: "V-2", KeyName: "DEFAULT", ExpectedStatus: "Not_Reviewed", ValidTrueStatus: "NotAFinding", ValidTrueComment: "ok"},
	}
	added, err := answerkey.Export(dir, "RHEL8", rows, testTime.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, []string{"V-1(ALTERNATE)", "V-2(DEFAULT)"}, added)

	root := readDoc(t, dir, "RHEL8").SelectElement("STIGComments")
	v1 := root.SelectElements("Vuln")[0]
	require.Len(t, v1.SelectElements("AnswerKey"), 2)

	comments := auditComments(root)
	require.Len(t, comments, 1)
	require.Contains(t, comments[0], "Added: V-1(ALTERNATE), V-2(DEFAULT)")
}

func TestExport_NothingToAdd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	added, err := answerkey.Export(dir, "RHEL8", []model.AnswerRow{{VulnID: ""}}, testTime)
	require.NoError(t, err)
	require.Empty(t, added)
	_, err = os.Stat(answerkey.Path(dir, "RHEL8"))
	require.True(t, os.IsNotExist(err))
}
