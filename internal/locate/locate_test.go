package locate_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stigtools/estig/internal/locate"
)

func writeChecklist(t *testing.T, dir, name, title string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"title": "`+title+`"}`), 0o644))
	return path
}

func TestNewest_PicksGreatestTimestamp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeChecklist(t, dir, "Evaluate-STIG_RHEL8_20240101-000000.cklb", "Evaluate-STIG_RHEL8")
	newer := writeChecklist(t, dir, "nested/Evaluate-STIG_RHEL8_20240102-000000.cklb", "Evaluate-STIG_RHEL8")
	other := writeChecklist(t, dir, "Evaluate-STIG_Win11_20230601-101010.cklb", "Evaluate-STIG_Win11")

	got, err := locate.Newest(t.Context(), dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, newer, got["RHEL8"].Path)
	require.Equal(t, "20240102-000000", got["RHEL8"].Timestamp)
	require.Equal(t, other, got["Win11"].Path)
}

func TestNewest_SkipsBadFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// no timestamp in the name
	writeChecklist(t, dir, "Evaluate-STIG_RHEL8.cklb", "Evaluate-STIG_RHEL8")
	// wrong extension
	writeChecklist(t, dir, "Evaluate-STIG_RHEL8_20240101-000000.json", "Evaluate-STIG_RHEL8")
	// title without the prefix
	writeChecklist(t, dir, "SCAP_Win11_20240101-000000.cklb", "SCAP_Win11")
	// malformed JSON
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "broken_20240101-000000.cklb"), []byte("{oops"), 0o644))
	// the one good file
	good := writeChecklist(t, dir, "Evaluate-STIG_Ubuntu22_20240101-000000.cklb", "Evaluate-STIG_Ubuntu22")

	got, err := locate.Newest(t.Context(), dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, good, got["Ubuntu22"].Path)
}

func TestNewest_CaseInsensitiveExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeChecklist(t, dir, "Evaluate-STIG_RHEL9_20240101-000000.CKLB", "Evaluate-STIG_RHEL9")

	got, err := locate.Newest(t.Context(), dir)
	require.NoError(t, err)
	require.Contains(t, got, "RHEL9")
}

func TestNewest_MissingRoot(t *testing.T) {
	t.Parallel()

	_, err := locate.Newest(t.Context(), filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestNewest_EmptyDir(t *testing.T) {
	t.Parallel()

	got, err := locate.Newest(t.Context(), t.TempDir())
	require.NoError(t, err)
	require.Empty(t, got)
}
