package locate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stigtools/estig/internal/model"
)

func TestExamine_Sentinels(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "Evaluate-STIG_RHEL8_20240101-120000.cklb")
	require.NoError(t, os.WriteFile(good, []byte(`{"title": "Evaluate-STIG_RHEL8"}`), 0o644))

	noPrefix := filepath.Join(dir, "SCAP_Win11_20240101-120000.cklb")
	require.NoError(t, os.WriteFile(noPrefix, []byte(`{"title": "SCAP_Win11"}`), 0o644))

	broken := filepath.Join(dir, "broken_20240101-120000.cklb")
	require.NoError(t, os.WriteFile(broken, []byte(`{oops`), 0o644))

	cand, err := examine(good, filepath.Base(good))
	require.NoError(t, err)
	require.Equal(t, "RHEL8", cand.Profile)
	require.Equal(t, "20240101-120000", cand.Timestamp)

	_, err = examine(good, "Evaluate-STIG_RHEL8.cklb")
	require.ErrorIs(t, err, model.ErrNoTimestamp)

	_, err = examine(noPrefix, filepath.Base(noPrefix))
	require.ErrorIs(t, err, model.ErrTitlePrefix)

	// malformed input is a plain parse error, not one of the sentinels
	_, err = examine(broken, filepath.Base(broken))
	require.Error(t, err)
	require.NotErrorIs(t, err, model.ErrNoTimestamp)
	require.NotErrorIs(t, err, model.ErrTitlePrefix)
}
