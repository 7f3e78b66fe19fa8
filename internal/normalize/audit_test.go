package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

func auditReview(show, outletID, outletName, criticID, criticName string) model.Review {
	return model.Review{
		ShowID:     show,
		OutletID:   outletID,
		OutletName: outletName,
		CriticID:   criticID,
		CriticName: criticName,
	}
}

func TestAudit_UnchangedTableIsClean(t *testing.T) {
	t.Parallel()

	n := New(nil)
	reviews := []model.Review{
		auditReview("hamilton", "new-york-times", "NYT", "ben-brantley", "Ben Brantley"),
		auditReview("hamilton", "variety", "Variety", "marilyn-stasio", "Marilyn Stasio"),
	}

	report := Audit(n, n, reviews)
	assert.True(t, report.Clean())
	assert.Equal(t, 2, report.Reviews)
}

func TestAudit_ReportsCollapse(t *testing.T) {
	t.Parallel()

	current, err := NewAliasTable("v1", []model.Outlet{{ID: "variety", Name: "Variety"}}, nil)
	require.NoError(t, err)
	candidate, err := NewAliasTable("v2", []model.Outlet{{ID: "variety", Name: "Variety"}}, []model.Critic{
		{ID: "marilyn-stasio", Name: "Marilyn Stasio", Aliases: []string{"M. Stasio"}},
	})
	require.NoError(t, err)

	reviews := []model.Review{
		auditReview("hamilton", "variety", "Variety", "marilyn-stasio", "Marilyn Stasio"),
		auditReview("hamilton", "variety", "Variety", "m-stasio", "M. Stasio"),
		auditReview("wicked", "variety", "Variety", "m-stasio", "M. Stasio"),
	}

	report := Audit(New(current), New(candidate), reviews)
	require.False(t, report.Clean())
	assert.Equal(t, "v1", report.CurrentVersion)
	assert.Equal(t, "v2", report.CandidateVersion)

	require.Len(t, report.Rekeys, 2)
	assert.Equal(t, "m-stasio", report.Rekeys[0].From.CriticID)
	assert.Equal(t, "marilyn-stasio", report.Rekeys[0].To.CriticID)

	require.Len(t, report.Collapses, 1)
	assert.Equal(t, "hamilton", report.Collapses[0].Into.ShowID)
	assert.Len(t, report.Collapses[0].From, 2)
}

func TestAudit_KeepsHeuristicIdentities(t *testing.T) {
	t.Parallel()

	n := New(nil)
	// Stored critic id came from an outlet-scoped prefix match at ingest.
	reviews := []model.Review{
		auditReview("hamilton", "new-york-times", "NYT", "jesse-green", "Jesse"),
	}

	report := Audit(n, n, reviews)
	assert.True(t, report.Clean())
}
