package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclex/doclex/internal/queryexec"
)

func TestProfileQuery_LeadingWildcardRewrite(t *testing.T) {
	// "*vertrag" is rewritten against content_reversed
	// with the reversed suffix.
	o, _ := newTestObserver(t)

	res, err := o.ProfileQuery(context.Background(), queryexec.Request{Query: "*vertrag"}, ProfileFlags{})
	require.NoError(t, err)
	assert.Contains(t, res.QueryStructure, "content_reversed:gartrev*")
}

func TestProfileQuery_LeadingWildcardExpandsOverDictionary(t *testing.T) {
	o, store := newTestObserver(t)
	indexDoc(t, store, "/d/a.txt", "Arbeitsvertrag Mietvertrag", "de", "text/plain")
	commit(t, store)

	res, err := o.ProfileQuery(context.Background(), queryexec.Request{Query: "*vertrag"}, ProfileFlags{})
	require.NoError(t, err)
	// With a populated dictionary the prefix is expanded into scored
	// terms, all still rooted at the reversed suffix.
	assert.Contains(t, res.QueryStructure, "content_reversed:gartrev")
}

func TestProfileQuery_AdaptivePrefixBoundary(t *testing.T) {
	// Length-4 prefixes get the scored expansion, length-3 stay
	// constant-score.
	o, store := newTestObserver(t)
	indexDoc(t, store, "/d/a.txt", "vertrag vertragspartner verlauf", "de", "text/plain")
	commit(t, store)

	long, err := o.ProfileQuery(context.Background(), queryexec.Request{Query: "vert*"}, ProfileFlags{})
	require.NoError(t, err)
	assert.Contains(t, long.QueryStructure, " OR ", "len>=4 prefix should expand to scored terms")
	assert.NotContains(t, long.QueryStructure, "content:vert*")

	short, err := o.ProfileQuery(context.Background(), queryexec.Request{Query: "ver*"}, ProfileFlags{})
	require.NoError(t, err)
	assert.Contains(t, short.QueryStructure, "content:ver*", "len<4 prefix stays constant-score")
}

func TestProfileQuery_PhraseExpansionVisible(t *testing.T) {
	o, _ := newTestObserver(t)

	res, err := o.ProfileQuery(context.Background(), queryexec.Request{Query: `"budget report"`}, ProfileFlags{})
	require.NoError(t, err)
	assert.Contains(t, res.QueryStructure, `content:"budget report"^2.0`)
	assert.Contains(t, res.QueryStructure, `content:"budget report"~3`)
}

func TestProfileQuery_TermRarity(t *testing.T) {
	o, store := newTestObserver(t)
	// 10 documents: "everywhere" in all 10, "half" in 5, "once" in 1.
	for i := 0; i < 10; i++ {
		content := "everywhere"
		if i < 5 {
			content += " half"
		}
		if i == 0 {
			content += " once"
		}
		indexDoc(t, store, "/d/doc"+string(rune('a'+i))+".txt", content, "en", "text/plain")
	}
	commit(t, store)

	res, err := o.ProfileQuery(context.Background(), queryexec.Request{Query: "everywhere half once"}, ProfileFlags{})
	require.NoError(t, err)
	require.Len(t, res.Terms, 3)

	byTerm := map[string]TermProfile{}
	for _, tp := range res.Terms {
		byTerm[tp.Term] = tp
	}
	assert.Equal(t, RarityVeryCommon, byTerm["everywhere"].Rarity)
	assert.Equal(t, 10, byTerm["everywhere"].DocFreq)
	assert.Equal(t, RarityVeryCommon, byTerm["half"].Rarity)
	assert.Equal(t, RarityCommon, byTerm["once"].Rarity)
	assert.Equal(t, 16, res.EstimatedCost)
}

func TestProfileQuery_FilterImpact(t *testing.T) {
	o, store := newTestObserver(t)
	indexDoc(t, store, "/d/a.txt", "report", "de", "text/plain")
	indexDoc(t, store, "/d/b.txt", "report", "de", "text/markdown")
	indexDoc(t, store, "/d/c.txt", "report", "en", "text/plain")
	commit(t, store)

	req := queryexec.Request{
		Query: "report",
		Filters: []queryexec.Filter{
			{Field: "language", Op: queryexec.OpEq, Value: "de"},
			{Field: "file_type", Op: queryexec.OpEq, Value: "text/plain"},
		},
	}
	res, err := o.ProfileQuery(context.Background(), req, ProfileFlags{FilterImpact: true})
	require.NoError(t, err)
	require.Len(t, res.FilterImpact, 2)

	assert.Equal(t, uint64(2), res.FilterImpact[0].HitsAfter)
	assert.Equal(t, uint64(1), res.FilterImpact[0].Removed)
	assert.Equal(t, uint64(1), res.FilterImpact[1].HitsAfter)
	assert.Equal(t, uint64(1), res.FilterImpact[1].Removed)
}

func TestProfileQuery_Explanations(t *testing.T) {
	o, store := newTestObserver(t)
	indexDoc(t, store, "/d/a.txt", "budget report budget", "en", "text/plain")
	indexDoc(t, store, "/d/b.txt", "budget report", "en", "text/plain")
	commit(t, store)

	res, err := o.ProfileQuery(context.Background(), queryexec.Request{Query: "budget report"}, ProfileFlags{ExplainDocs: 2})
	require.NoError(t, err)
	require.Len(t, res.Explanations, 2)
	for _, e := range res.Explanations {
		assert.NotEmpty(t, e.FilePath)
		assert.Positive(t, e.Score)
		assert.NotEmpty(t, e.Contributions)
	}
}

func TestProfileQuery_InvalidSyntaxSurfaces(t *testing.T) {
	o, _ := newTestObserver(t)
	_, err := o.ProfileQuery(context.Background(), queryexec.Request{Query: "alpha AND"}, ProfileFlags{})
	assert.Error(t, err)
}

func TestRenderQuery_Shapes(t *testing.T) {
	o, _ := newTestObserver(t)

	res, err := o.ProfileQuery(context.Background(), queryexec.Request{Query: "*"}, ProfileFlags{})
	require.NoError(t, err)
	assert.Equal(t, "*:*", res.QueryStructure)

	res, err = o.ProfileQuery(context.Background(), queryexec.Request{Query: "alpha AND beta"}, ProfileFlags{})
	require.NoError(t, err)
	assert.True(t, strings.Contains(res.QueryStructure, " AND "))
}
