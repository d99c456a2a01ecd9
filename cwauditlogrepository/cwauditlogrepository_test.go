package cwauditlogrepository

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/YaleSpinup/mds-api/cloudwatchlogs"
	"github.com/pkg/errors"
)

// mockCWLogs is a fake cloudwatch logs client
type mockCWLogs struct {
	t             *testing.T
	mux           sync.Mutex
	err           map[string]error
	groups        map[string]map[string]*string
	streams       map[string][]string
	events        map[string][]*cloudwatchlogs.Event
	deletedGroups []string
}

func newMockCWLogs(t *testing.T) *mockCWLogs {
	return &mockCWLogs{
		t:       t,
		err:     make(map[string]error),
		groups:  make(map[string]map[string]*string),
		streams: make(map[string][]string),
		events:  make(map[string][]*cloudwatchlogs.Event),
	}
}

func (m *mockCWLogs) LogEvent(ctx context.Context, group, stream string, events []*cloudwatchlogs.Event) error {
	if err, ok := m.err["LogEvent"]; ok {
		return err
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	m.events[group+"/"+stream] = append(m.events[group+"/"+stream], events...)
	return nil
}

func (m *mockCWLogs) GetLogEvents(ctx context.Context, group, stream string) ([]*cloudwatchlogs.Event, error) {
	if err, ok := m.err["GetLogEvents"]; ok {
		return nil, err
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.events[group+"/"+stream], nil
}

func (m *mockCWLogs) CreateLogGroup(ctx context.Context, group string, tags map[string]*string) error {
	if err, ok := m.err["CreateLogGroup"]; ok {
		return err
	}
	m.groups[group] = tags
	return nil
}

func (m *mockCWLogs) UpdateRetention(ctx context.Context, group string, retention int64) error {
	if err, ok := m.err["UpdateRetention"]; ok {
		return err
	}
	return nil
}

func (m *mockCWLogs) CreateLogStream(ctx context.Context, group, stream string) error {
	if err, ok := m.err["CreateLogStream"]; ok {
		return err
	}
	m.streams[group] = append(m.streams[group], stream)
	return nil
}

func (m *mockCWLogs) TagLogGroup(ctx context.Context, group string, tags map[string]*string) error {
	return nil
}

func (m *mockCWLogs) GetLogGroupTags(ctx context.Context, group string) (map[string]*string, error) {
	return m.groups[group], nil
}

func (m *mockCWLogs) DescribeLogGroup(ctx context.Context, group string) (*cloudwatchlogs.LogGroup, error) {
	return &cloudwatchlogs.LogGroup{Name: group}, nil
}

func (m *mockCWLogs) DeleteLogGroup(ctx context.Context, group string) error {
	m.deletedGroups = append(m.deletedGroups, group)
	delete(m.groups, group)
	return nil
}

func newTestRepository(t *testing.T) (*CWAuditLogRepository, *mockCWLogs) {
	mock := newMockCWLogs(t)
	return &CWAuditLogRepository{
		CW:           mock,
		GroupPrefix:  "/metadata/test/",
		StreamPrefix: "entity-",
		timeout:      100 * time.Millisecond,
	}, mock
}

func TestCreateLog(t *testing.T) {
	repo, mock := newTestRepository(t)

	if err := repo.CreateLog(context.TODO(), "provider1", "dataset", 90, nil); err != nil {
		t.Errorf("expected nil error, got %s", err)
	}

	if _, ok := mock.groups["/metadata/test/provider1"]; !ok {
		t.Errorf("expected log group /metadata/test/provider1 to be created, got %+v", mock.groups)
	}

	streams := mock.streams["/metadata/test/provider1"]
	if len(streams) != 1 || streams[0] != "entity-dataset" {
		t.Errorf("expected stream entity-dataset to be created, got %+v", streams)
	}
}

func TestCreateLogRollback(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.err["CreateLogStream"] = errors.New("boom")

	if err := repo.CreateLog(context.TODO(), "provider1", "dataset", 90, nil); err == nil {
		t.Error("expected error creating log, got nil")
	}

	// group creation should have been rolled back
	if !reflect.DeepEqual(mock.deletedGroups, []string{"/metadata/test/provider1"}) {
		t.Errorf("expected rollback to delete log group, got %+v", mock.deletedGroups)
	}
}

func TestLogBatchesEvents(t *testing.T) {
	repo, mock := newTestRepository(t)

	ctx, cancel := context.WithCancel(context.Background())
	stream := repo.Log(ctx, "provider1", "dataset")

	stream <- "hard deleted urn:li:tag:Legacy"
	cancel()

	// wait for the batching goroutine to flush
	var events []*cloudwatchlogs.Event
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events, _ = mock.GetLogEvents(ctx, "/metadata/test/provider1", "entity-dataset")
		if len(events) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event to be flushed, got %d", len(events))
	}

	if events[0].Message != "hard deleted urn:li:tag:Legacy" {
		t.Errorf("unexpected event message: %s", events[0].Message)
	}
}

func TestGetLog(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.events["/metadata/test/provider1/entity-dataset"] = []*cloudwatchlogs.Event{
		{Message: "created urn:li:tag:Legacy", Timestamp: 1},
		{Message: "deprecated urn:li:tag:Legacy", Timestamp: 2},
	}

	messages, err := repo.GetLog(context.TODO(), "provider1", "dataset")
	if err != nil {
		t.Errorf("expected nil error, got %s", err)
	}

	expected := []string{"created urn:li:tag:Legacy", "deprecated urn:li:tag:Legacy"}
	if !reflect.DeepEqual(messages, expected) {
		t.Errorf("expected messages %+v, got %+v", expected, messages)
	}

	mock.err["GetLogEvents"] = errors.New("boom")
	if _, err := repo.GetLog(context.TODO(), "provider1", "dataset"); err == nil {
		t.Error("expected error getting log, got nil")
	}
}
