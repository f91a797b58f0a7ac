package merge_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stigtools/estig/internal/merge"
)

func TestPlan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing []string
		incoming []string
		want     []string
	}{
		{
			name:     "all new, order preserved",
			incoming: []string{"V-3", "V-1", "V-2"},
			want:     []string{"V-3", "V-1", "V-2"},
		},
		{
			name:     "existing filtered",
			existing: []string{"V-1", "V-2"},
			incoming: []string{"V-1", "V-3", "V-2", "V-4"},
			want:     []string{"V-3", "V-4"},
		},
		{
			name:     "duplicates within incoming collapse to first",
			incoming: []string{"V-1", "V-2", "V-1", "V-1"},
			want:     []string{"V-1", "V-2"},
		},
		{
			name:     "empty identifiers dropped",
			incoming: []string{"", "V-1", ""},
			want:     []string{"V-1"},
		},
		{
			name:     "already merged store yields empty",
			existing: []string{"V-1", "V-2"},
			incoming: []string{"V-1", "V-2"},
			want:     nil,
		},
		{
			name: "nothing incoming",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := merge.Plan(merge.Snapshot(tt.existing), tt.incoming)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPlan_Idempotent(t *testing.T) {
	t.Parallel()

	existing := merge.Snapshot([]string{"V-9"})
	incoming := []string{"V-9", "V-10", "V-11", "V-10"}

	first := merge.Plan(existing, incoming)
	require.Equal(t, []string{"V-10", "V-11"}, first)

	// simulate the first run being applied, then re-run
	for _, id := range first {
		existing[id] = struct{}{}
	}
	require.Empty(t, merge.Plan(existing, incoming))
}
