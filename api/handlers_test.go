package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/YaleSpinup/mds-api/apierror"
	"github.com/YaleSpinup/mds-api/common"
	"github.com/YaleSpinup/mds-api/metadata"
	"github.com/YaleSpinup/mds-api/searchindex"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMetadataRepository is a map backed metadata repository
type mockMetadataRepository struct {
	mux  sync.Mutex
	docs map[string]*metadata.Metadata
	err  error
}

func newMockMetadataRepository() *mockMetadataRepository {
	return &mockMetadataRepository{docs: make(map[string]*metadata.Metadata)}
}

func (m *mockMetadataRepository) key(account, urn string) string {
	return account + "/" + urn
}

func (m *mockMetadataRepository) Create(ctx context.Context, account, urn string, doc *metadata.Metadata) (*metadata.Metadata, error) {
	if m.err != nil {
		return nil, m.err
	}

	m.mux.Lock()
	defer m.mux.Unlock()

	if _, ok := m.docs[m.key(account, urn)]; ok {
		return nil, apierror.New(apierror.ErrConflict, "already exists: "+urn, nil)
	}

	d := *doc
	m.docs[m.key(account, urn)] = &d
	return doc, nil
}

func (m *mockMetadataRepository) Get(ctx context.Context, account, urn string) (*metadata.Metadata, error) {
	if m.err != nil {
		return nil, m.err
	}

	m.mux.Lock()
	defer m.mux.Unlock()

	doc, ok := m.docs[m.key(account, urn)]
	if !ok {
		return nil, apierror.New(apierror.ErrNotFound, "not found: "+urn, nil)
	}

	d := *doc
	return &d, nil
}

func (m *mockMetadataRepository) Update(ctx context.Context, account, urn string, doc *metadata.Metadata) (*metadata.Metadata, error) {
	if m.err != nil {
		return nil, m.err
	}

	m.mux.Lock()
	defer m.mux.Unlock()

	if _, ok := m.docs[m.key(account, urn)]; !ok {
		return nil, apierror.New(apierror.ErrNotFound, "not found: "+urn, nil)
	}

	d := *doc
	m.docs[m.key(account, urn)] = &d
	return doc, nil
}

func (m *mockMetadataRepository) Delete(ctx context.Context, account, urn string) error {
	if m.err != nil {
		return m.err
	}

	m.mux.Lock()
	defer m.mux.Unlock()

	if _, ok := m.docs[m.key(account, urn)]; !ok {
		return apierror.New(apierror.ErrNotFound, "not found: "+urn, nil)
	}

	delete(m.docs, m.key(account, urn))
	return nil
}

func (m *mockMetadataRepository) List(ctx context.Context, account string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}

	m.mux.Lock()
	defer m.mux.Unlock()

	urns := []string{}
	for k, doc := range m.docs {
		if k == account+"/"+doc.URN {
			urns = append(urns, doc.URN)
		}
	}
	sort.Strings(urns)
	return urns, nil
}

// mockAuditLogRepository collects audit events in memory
type mockAuditLogRepository struct {
	mux    sync.Mutex
	groups map[string]bool
	events map[string][]string
}

func newMockAuditLogRepository() *mockAuditLogRepository {
	return &mockAuditLogRepository{
		groups: make(map[string]bool),
		events: make(map[string][]string),
	}
}

func (m *mockAuditLogRepository) CreateLog(ctx context.Context, group, stream string, retention int64, tags []*metadata.Tag) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.groups[group+"/"+stream] = true
	return nil
}

func (m *mockAuditLogRepository) Log(ctx context.Context, group, stream string) chan string {
	events := make(chan string, 64)
	go func() {
		for msg := range events {
			m.mux.Lock()
			m.events[group+"/"+stream] = append(m.events[group+"/"+stream], msg)
			m.mux.Unlock()
		}
	}()
	return events
}

func (m *mockAuditLogRepository) GetLog(ctx context.Context, group, stream string) ([]string, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.events[group+"/"+stream], nil
}

func newTestServer(t *testing.T) (*server, *mockMetadataRepository, *mockAuditLogRepository) {
	t.Helper()

	repo := newMockMetadataRepository()
	auditLog := newMockAuditLogRepository()
	index := searchindex.New()

	s := &server{
		metadataServices: map[string]*metadata.Service{
			"provider1": metadata.NewService(
				metadata.WithMetadataRepository(repo),
				metadata.WithSearchIndex(index),
				metadata.WithAuditLogRepository(auditLog),
			),
		},
		router:  mux.NewRouter(),
		version: common.Version{Version: "0.1.0"},
		context: context.TODO(),
	}
	s.routes()

	return s, repo, auditLog
}

func (s *server) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func createTestEntity(t *testing.T, s *server, name, platform string) string {
	t.Helper()

	rec := s.do("POST", "/v1/metadata/provider1/entities", EntityCreateInput{
		Name:      name,
		Platform:  platform,
		CreatedBy: "tester",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := metadata.Metadata{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.URN
}

func TestPingHandler(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := s.do("GET", "/v1/metadata/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestVersionHandler(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := s.do("GET", "/v1/metadata/version", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	out := common.Version{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "0.1.0", out.Version)
}

func TestEntityCreateHandler(t *testing.T) {
	s, repo, _ := newTestServer(t)

	rec := s.do("POST", "/v1/metadata/provider1/entities", EntityCreateInput{
		Name:        "logging_events",
		Platform:    "hive",
		Description: "application log events",
		Tags:        []string{"Legacy"},
		CreatedBy:   "tester",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := metadata.Metadata{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "urn:li:dataset:(urn:li:dataPlatform:hive,logging_events,PROD)", out.URN)
	assert.Equal(t, metadata.EntityTypeDataset, out.EntityType)
	assert.Equal(t, []string{"urn:li:tag:Legacy"}, out.Tags)

	stored, err := repo.Get(context.TODO(), "provider1", out.URN)
	require.NoError(t, err)
	assert.Equal(t, "application log events", stored.Description)

	// the new entity is searchable
	search := s.do("POST", "/v1/metadata/provider1/search", metadata.SearchInput{Query: "logging"})
	require.Equal(t, http.StatusOK, search.Code)

	result := metadata.SearchResult{}
	require.NoError(t, json.Unmarshal(search.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Total)
}

func TestEntityCreateHandlerBadInput(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := s.do("POST", "/v1/metadata/provider1/entities", EntityCreateInput{Platform: "hive"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do("POST", "/v1/metadata/provider1/entities", EntityCreateInput{
		Name:     "logging_events",
		Platform: "hive",
		Env:      "NOTANENV",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do("POST", "/v1/metadata/missingaccount/entities", EntityCreateInput{
		Name:     "logging_events",
		Platform: "hive",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEntityCreateHandlerConflict(t *testing.T) {
	s, _, _ := newTestServer(t)

	createTestEntity(t, s, "logging_events", "hive")

	rec := s.do("POST", "/v1/metadata/provider1/entities", EntityCreateInput{
		Name:     "logging_events",
		Platform: "hive",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEntityShowHandler(t *testing.T) {
	s, _, _ := newTestServer(t)

	urn := createTestEntity(t, s, "logging_events", "hive")

	rec := s.do("GET", "/v1/metadata/provider1/entities/"+urn, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := metadata.Metadata{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, urn, out.URN)

	rec = s.do("GET", "/v1/metadata/provider1/entities/urn:li:dataset:(urn:li:dataPlatform:hive,missing,PROD)", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEntityListHandler(t *testing.T) {
	s, _, _ := newTestServer(t)

	createTestEntity(t, s, "logging_events", "hive")
	createTestEntity(t, s, "fct_users_created", "hive")

	rec := s.do("GET", "/v1/metadata/provider1/entities", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := struct {
		Account string   `json:"account"`
		Total   int      `json:"total"`
		URNs    []string `json:"urns"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "provider1", out.Account)
	assert.Equal(t, 2, out.Total)
	assert.Len(t, out.URNs, 2)

	// pagination
	rec = s.do("GET", "/v1/metadata/provider1/entities?start=1&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Total)
	assert.Len(t, out.URNs, 1)

	rec = s.do("GET", "/v1/metadata/provider1/entities?start=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEntityUpdateHandler(t *testing.T) {
	s, repo, _ := newTestServer(t)

	urn := createTestEntity(t, s, "logging_events", "hive")

	description := "refreshed description"
	rec := s.do("PUT", "/v1/metadata/provider1/entities/"+urn, EntityUpdateInput{
		Description: &description,
		Tags:        []string{"PII"},
		ModifiedBy:  "tester",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := repo.Get(context.TODO(), "provider1", urn)
	require.NoError(t, err)
	assert.Equal(t, "refreshed description", stored.Description)
	assert.Equal(t, []string{"urn:li:tag:PII"}, stored.Tags)
	assert.NotNil(t, stored.ModifiedAt)
	assert.Equal(t, "tester", stored.ModifiedBy)
}

func TestEntityDeleteHandlerSoft(t *testing.T) {
	s, repo, _ := newTestServer(t)

	urn := createTestEntity(t, s, "logging_events", "hive")

	rec := s.do("DELETE", "/v1/metadata/provider1/entities/"+urn, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// document stays in the repository, marked removed
	stored, err := repo.Get(context.TODO(), "provider1", urn)
	require.NoError(t, err)
	assert.True(t, stored.Removed)

	// soft deleted entities drop out of default search results
	search := s.do("POST", "/v1/metadata/provider1/search", metadata.SearchInput{Query: "logging"})
	require.Equal(t, http.StatusOK, search.Code)

	result := metadata.SearchResult{}
	require.NoError(t, json.Unmarshal(search.Body.Bytes(), &result))
	assert.Equal(t, 0, result.Total)
}

func TestEntityDeleteHandlerHard(t *testing.T) {
	s, repo, _ := newTestServer(t)

	urn := createTestEntity(t, s, "logging_events", "hive")

	rec := s.do("DELETE", "/v1/metadata/provider1/entities/"+urn+"?hard=true", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := repo.Get(context.TODO(), "provider1", urn)
	assert.Error(t, err)
}

func TestDeprecationUpdateHandler(t *testing.T) {
	s, repo, _ := newTestServer(t)

	urn := createTestEntity(t, s, "fct_users_created", "hive")

	rec := s.do("PATCH", "/v1/metadata/provider1/entities/"+urn+"/deprecation", DeprecationInput{
		Deprecated:       true,
		Note:             "replaced by fct_users_created_v2",
		DecommissionTime: 1735689600000,
		Actor:            "tester",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := repo.Get(context.TODO(), "provider1", urn)
	require.NoError(t, err)
	require.NotNil(t, stored.Deprecation)
	assert.True(t, stored.Deprecation.Deprecated)
	assert.Equal(t, "replaced by fct_users_created_v2", stored.Deprecation.Note)
	require.NotNil(t, stored.Deprecation.DecommissionTime)

	// clearing deprecation drops the note and decommission time
	rec = s.do("PATCH", "/v1/metadata/provider1/entities/"+urn+"/deprecation", DeprecationInput{
		Deprecated: false,
		Actor:      "tester",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err = repo.Get(context.TODO(), "provider1", urn)
	require.NoError(t, err)
	assert.Nil(t, stored.Deprecation)
}

func TestDeprecationBatchUpdateHandler(t *testing.T) {
	s, repo, _ := newTestServer(t)

	urn1 := createTestEntity(t, s, "logging_events", "hive")
	urn2 := createTestEntity(t, s, "fct_users_created", "hive")

	rec := s.do("PATCH", "/v1/metadata/provider1/deprecation", BatchDeprecationInput{
		URNs:       []string{urn1, urn2},
		Deprecated: true,
		Note:       "platform decommissioned",
		Actor:      "tester",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := struct {
		Updated int      `json:"updated"`
		URNs    []string `json:"urns"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Updated)

	for _, urn := range []string{urn1, urn2} {
		stored, err := repo.Get(context.TODO(), "provider1", urn)
		require.NoError(t, err)
		require.NotNil(t, stored.Deprecation)
		assert.True(t, stored.Deprecation.Deprecated)
	}
}

func TestDeprecationBatchUpdateHandlerValidatesFirst(t *testing.T) {
	s, repo, _ := newTestServer(t)

	urn := createTestEntity(t, s, "logging_events", "hive")
	missing := "urn:li:dataset:(urn:li:dataPlatform:hive,missing,PROD)"

	rec := s.do("PATCH", "/v1/metadata/provider1/deprecation", BatchDeprecationInput{
		URNs:       []string{urn, missing},
		Deprecated: true,
		Actor:      "tester",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), missing)

	// the existing entity was not touched
	stored, err := repo.Get(context.TODO(), "provider1", urn)
	require.NoError(t, err)
	assert.Nil(t, stored.Deprecation)
}

func TestIngestHandlerCreatesDataset(t *testing.T) {
	s, repo, _ := newTestServer(t)

	urn := "urn:li:dataset:(urn:li:dataPlatform:kafka,events.clicks,DEV)"
	rec := s.do("POST", "/v1/metadata/provider1/ingest", metadata.ChangeProposal{
		EntityURN:  urn,
		AspectName: metadata.AspectDatasetProperties,
		Aspect:     json.RawMessage(`{"description": "click stream", "customProperties": {"owner": "web"}}`),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	stored, err := repo.Get(context.TODO(), "provider1", urn)
	require.NoError(t, err)
	assert.Equal(t, "events.clicks", stored.Name)
	assert.Equal(t, "kafka", stored.Platform)
	assert.Equal(t, "DEV", stored.Env)
	assert.Equal(t, "click stream", stored.Description)
	assert.Equal(t, "web", stored.CustomProperties["owner"])
}

func TestIngestHandlerUpdatesAspect(t *testing.T) {
	s, repo, _ := newTestServer(t)

	urn := createTestEntity(t, s, "fct_users_created", "hive")

	rec := s.do("POST", "/v1/metadata/provider1/ingest", metadata.ChangeProposal{
		EntityURN:  urn,
		AspectName: metadata.AspectDeprecation,
		Aspect:     json.RawMessage(`{"deprecated": true, "note": "dont use this", "decommissionTime": 1735689600000}`),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := repo.Get(context.TODO(), "provider1", urn)
	require.NoError(t, err)
	require.NotNil(t, stored.Deprecation)
	assert.True(t, stored.Deprecation.Deprecated)
	assert.Equal(t, "dont use this", stored.Deprecation.Note)
}

func TestIngestHandlerUnknownEntityAspect(t *testing.T) {
	s, _, _ := newTestServer(t)

	// a non datasetProperties aspect for an unknown entity does not create it
	rec := s.do("POST", "/v1/metadata/provider1/ingest", metadata.ChangeProposal{
		EntityURN:  "urn:li:dataset:(urn:li:dataPlatform:hive,missing,PROD)",
		AspectName: metadata.AspectStatus,
		Aspect:     json.RawMessage(`{"removed": true}`),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestHandlerBadProposal(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := s.do("POST", "/v1/metadata/provider1/ingest", metadata.ChangeProposal{
		EntityURN:  "urn:li:dataset:(urn:li:dataPlatform:hive,logging_events,PROD)",
		AspectName: "bogusAspect",
		Aspect:     json.RawMessage(`{}`),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEntityLogHandler(t *testing.T) {
	s, _, auditLog := newTestServer(t)

	urn := createTestEntity(t, s, "logging_events", "hive")

	// seed the audit events directly, the Log channel writer is async
	auditLog.mux.Lock()
	auditLog.events["provider1/dataset"] = []string{
		fmt.Sprintf("created entity %s by tester", urn),
		"created entity urn:li:dataset:(urn:li:dataPlatform:hive,other,PROD) by tester",
	}
	auditLog.mux.Unlock()

	rec := s.do("GET", "/v1/metadata/provider1/entities/"+urn+"/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := struct {
		URN    string   `json:"urn"`
		Events []string `json:"events"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, urn, out.URN)
	require.Len(t, out.Events, 1)
	assert.Contains(t, out.Events[0], urn)
}
