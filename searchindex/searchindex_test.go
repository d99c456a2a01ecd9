package searchindex

import (
	"testing"
	"time"

	"github.com/YaleSpinup/mds-api/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedIndex(t *testing.T) *Index {
	t.Helper()

	idx := New()

	now := time.Now().UTC()
	docs := []*metadata.Metadata{
		{
			URN:         "urn:li:dataset:(urn:li:dataPlatform:hive,logging_events,PROD)",
			EntityType:  metadata.EntityTypeDataset,
			Name:        "logging_events",
			Platform:    "hive",
			Env:         "PROD",
			Description: "Raw logging events",
			Tags:        []string{"urn:li:tag:Legacy"},
			CreatedAt:   &now,
		},
		{
			URN:         "urn:li:dataset:(urn:li:dataPlatform:hive,fct_users_created,PROD)",
			EntityType:  metadata.EntityTypeDataset,
			Name:        "fct_users_created",
			Platform:    "hive",
			Env:         "PROD",
			Description: "users created on a single day",
			Deprecation: &metadata.Deprecation{Deprecated: true, Note: "retired"},
		},
		{
			URN:        "urn:li:dataset:(urn:li:dataPlatform:kafka,events.clicks,DEV)",
			EntityType: metadata.EntityTypeDataset,
			Name:       "events.clicks",
			Platform:   "kafka",
			Env:        "DEV",
		},
		{
			URN:        "urn:li:dataset:(urn:li:dataPlatform:hive,old_logging_events,PROD)",
			EntityType: metadata.EntityTypeDataset,
			Name:       "old_logging_events",
			Platform:   "hive",
			Env:        "PROD",
			Removed:    true,
		},
		{
			URN:        "urn:li:tag:Legacy",
			EntityType: metadata.EntityTypeTag,
			Name:       "Legacy",
		},
	}

	for _, d := range docs {
		require.NoError(t, idx.Index("provider1", d))
	}

	return idx
}

func TestIndexRequiresURN(t *testing.T) {
	idx := New()

	assert.Error(t, idx.Index("provider1", &metadata.Metadata{}))
	assert.Error(t, idx.Index("provider1", nil))
	assert.Error(t, idx.Index("", &metadata.Metadata{URN: "urn:li:tag:Legacy"}))
}

func TestSearchByToken(t *testing.T) {
	idx := seedIndex(t)

	result, err := idx.Search("provider1", &metadata.SearchInput{Query: "logging"})
	require.NoError(t, err)

	// the soft deleted old_logging_events must not come back
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "urn:li:dataset:(urn:li:dataPlatform:hive,logging_events,PROD)", result.Entities[0].URN)
}

func TestSearchPrefixMatch(t *testing.T) {
	idx := seedIndex(t)

	result, err := idx.Search("provider1", &metadata.SearchInput{Query: "log"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "logging_events", result.Entities[0].Name)
}

func TestSearchMultipleTokensIntersect(t *testing.T) {
	idx := seedIndex(t)

	result, err := idx.Search("provider1", &metadata.SearchInput{Query: "users created"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "fct_users_created", result.Entities[0].Name)

	result, err = idx.Search("provider1", &metadata.SearchInput{Query: "users clicks"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
}

func TestSearchAcrossEntityTypes(t *testing.T) {
	idx := seedIndex(t)

	// tag name matches both the tag entity and the tagged dataset
	result, err := idx.Search("provider1", &metadata.SearchInput{Query: "legacy"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	result, err = idx.Search("provider1", &metadata.SearchInput{
		Query:       "legacy",
		EntityTypes: []string{metadata.EntityTypeTag},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "urn:li:tag:Legacy", result.Entities[0].URN)
}

func TestSearchFilters(t *testing.T) {
	idx := seedIndex(t)

	result, err := idx.Search("provider1", &metadata.SearchInput{
		Query:   "*",
		Filters: map[string]string{"platform": "kafka"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "events.clicks", result.Entities[0].Name)

	result, err = idx.Search("provider1", &metadata.SearchInput{
		Query:   "*",
		Filters: map[string]string{"deprecated": "true"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "fct_users_created", result.Entities[0].Name)

	result, err = idx.Search("provider1", &metadata.SearchInput{
		Query:   "*",
		Filters: map[string]string{"tag": "Legacy"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "logging_events", result.Entities[0].Name)

	// soft deleted entities only come back when asked for
	result, err = idx.Search("provider1", &metadata.SearchInput{
		Query:   "*",
		Filters: map[string]string{"removed": "true"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "old_logging_events", result.Entities[0].Name)
}

func TestSearchPagination(t *testing.T) {
	idx := seedIndex(t)

	result, err := idx.Search("provider1", &metadata.SearchInput{Query: "*", Count: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	assert.Len(t, result.Entities, 2)

	page2, err := idx.Search("provider1", &metadata.SearchInput{Query: "*", Start: 2, Count: 2})
	require.NoError(t, err)
	assert.Len(t, page2.Entities, 2)
	assert.NotEqual(t, result.Entities[0].URN, page2.Entities[0].URN)

	// results are ordered by urn, so pages don't overlap
	urns := map[string]bool{}
	for _, e := range append(result.Entities, page2.Entities...) {
		urns[e.URN] = true
	}
	assert.Len(t, urns, 4)

	_, err = idx.Search("provider1", &metadata.SearchInput{Query: "*", Start: -1})
	assert.Error(t, err)
}

func TestSearchUnknownAccount(t *testing.T) {
	idx := seedIndex(t)

	result, err := idx.Search("provider2", &metadata.SearchInput{Query: "*"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Entities)
}

func TestRemove(t *testing.T) {
	idx := seedIndex(t)

	idx.Remove("provider1", "urn:li:dataset:(urn:li:dataPlatform:hive,logging_events,PROD)")

	result, err := idx.Search("provider1", &metadata.SearchInput{Query: "logging"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)

	// removing an unknown urn is a no-op
	idx.Remove("provider1", "urn:li:dataset:(urn:li:dataPlatform:hive,never_indexed,PROD)")
	idx.Remove("provider2", "urn:li:tag:Legacy")
}

func TestReindexReplacesTerms(t *testing.T) {
	idx := seedIndex(t)

	updated := &metadata.Metadata{
		URN:        "urn:li:dataset:(urn:li:dataPlatform:kafka,events.clicks,DEV)",
		EntityType: metadata.EntityTypeDataset,
		Name:       "events.purchases",
		Platform:   "kafka",
		Env:        "DEV",
	}
	require.NoError(t, idx.Index("provider1", updated))

	result, err := idx.Search("provider1", &metadata.SearchInput{Query: "clicks"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)

	result, err = idx.Search("provider1", &metadata.SearchInput{Query: "purchases"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "events.purchases", result.Entities[0].Name)
}
