package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocumentStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to DocumentStatus
		allowed  bool
	}{
		{DocumentStatusPending, DocumentStatusExtracting, true},
		{DocumentStatusExtracting, DocumentStatusAnalyzing, true},
		{DocumentStatusExtracting, DocumentStatusFailed, true},
		{DocumentStatusAnalyzing, DocumentStatusCompleted, true},
		{DocumentStatusAnalyzing, DocumentStatusFailed, true},
		{DocumentStatusPending, DocumentStatusAnalyzing, false},
		{DocumentStatusPending, DocumentStatusFailed, false},
		{DocumentStatusExtracting, DocumentStatusCompleted, false},
		{DocumentStatusCompleted, DocumentStatusPending, false},
		{DocumentStatusFailed, DocumentStatusExtracting, false},
		{DocumentStatusAnalyzing, DocumentStatusExtracting, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestDocumentStatusValid(t *testing.T) {
	for _, s := range []DocumentStatus{
		DocumentStatusPending, DocumentStatusExtracting, DocumentStatusAnalyzing,
		DocumentStatusCompleted, DocumentStatusFailed,
	} {
		require.True(t, s.Valid(), s)
	}
	require.False(t, DocumentStatus("processing").Valid())
	require.False(t, DocumentStatus("").Valid())

	require.True(t, DocumentStatusExtracting.InFlight())
	require.True(t, DocumentStatusAnalyzing.InFlight())
	require.False(t, DocumentStatusPending.InFlight())
	require.True(t, DocumentStatusFailed.Terminal())
	require.False(t, DocumentStatusAnalyzing.Terminal())
}

func TestCategoryValid(t *testing.T) {
	require.True(t, CategoryTravel.Valid())
	require.False(t, Category("food").Valid())
	require.Len(t, Categories, 7)
}
