package services

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quorumsec/auditcore/internal/config"
	"github.com/quorumsec/auditcore/internal/models"
	"github.com/quorumsec/auditcore/internal/ocsf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:         t.TempDir(),
		MaxDBSizeMB:     10,
		MaxRotatedFiles: 5,
	}
}

func newTestService(t *testing.T) *AuditService {
	t.Helper()
	svc := NewAuditService(testConfig(t))
	require.True(t, svc.Initialize())
	t.Cleanup(svc.Close)
	return svc
}

func TestInitializeIdempotent(t *testing.T) {
	svc := NewAuditService(testConfig(t))
	defer svc.Close()

	require.True(t, svc.Initialize())
	require.True(t, svc.Initialize())

	// A second call returns early, so exactly one "service initialized"
	// system event exists and the schema is not duplicated.
	events := svc.Query(models.EventFilter{Category: ocsf.CategorySystem})
	require.Len(t, events, 1)
	assert.Equal(t, "audit service initialized", events[0].Message)
}

func TestInitializeFailureReturnsFalse(t *testing.T) {
	cfg := testConfig(t)
	// Use a file where the data directory should be so MkdirAll fails.
	blocked := filepath.Join(cfg.DataDir, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o600))
	cfg.DataDir = blocked

	svc := NewAuditService(cfg)
	assert.False(t, svc.Initialize())
}

func TestLogQueryRoundTrip(t *testing.T) {
	svc := newTestService(t)

	svc.Log(models.LogParams{
		Category:     ocsf.CategoryAuthentication,
		Activity:     ocsf.ActivityAuthenticate,
		Severity:     ocsf.SeverityHigh,
		Status:       ocsf.StatusFailure,
		StatusDetail: "bad password",
		Message:      "login rejected",
		ActorUser:    "alice",
		ActorSession: "sess-9",
		TargetType:   "account",
		TargetName:   "alice@example.com",
		TargetData:   json.RawMessage(`{"attempts":3}`),
		RawData:      `{"src":"10.0.0.8"}`,
	})

	events := svc.Query(models.EventFilter{Category: ocsf.CategoryAuthentication})
	require.Len(t, events, 1)
	event := events[0]

	assert.NotEmpty(t, event.ID)
	assert.InDelta(t, time.Now().UnixMilli(), event.Time, 5000)
	assert.Equal(t, ocsf.ClassUID, event.ClassUID)
	assert.Equal(t, ocsf.ClassName, event.ClassName)
	assert.Equal(t, ocsf.CategoryAuthentication, event.Category)
	assert.Equal(t, "authentication", event.CategoryName)
	assert.Equal(t, ocsf.ActivityAuthenticate, event.Activity)
	assert.Equal(t, "authenticate", event.ActivityName)
	assert.Equal(t, ocsf.SeverityHigh, event.Severity)
	assert.Equal(t, "high", event.SeverityName)
	assert.Equal(t, ocsf.StatusFailure, event.Status)
	assert.Equal(t, "failure", event.StatusName)
	assert.Equal(t, "bad password", event.StatusDetail)
	assert.Equal(t, "login rejected", event.Message)
	require.NotNil(t, event.Actor)
	assert.Equal(t, "alice", event.Actor.User)
	assert.Equal(t, "sess-9", event.Actor.Session)
	require.NotNil(t, event.Target)
	assert.Equal(t, "account", event.Target.Type)
	assert.Equal(t, "alice@example.com", event.Target.Name)
	assert.JSONEq(t, `{"attempts":3}`, string(event.Target.Data))
	assert.Equal(t, models.ProductName, event.Metadata.Product)
	assert.Equal(t, ocsf.SchemaVersion, event.Metadata.Version)
	assert.Equal(t, `{"src":"10.0.0.8"}`, event.RawData)
}

func TestLogWithoutInitializeDropsEvent(t *testing.T) {
	svc := NewAuditService(testConfig(t))

	// Must not panic and must not surface an error.
	svc.Log(models.LogParams{
		Category: ocsf.CategoryApplication,
		Activity: ocsf.ActivityCreate,
		Message:  "dropped",
	})

	assert.Empty(t, svc.Query(models.EventFilter{}))
	assert.Zero(t, svc.Stats().TotalEvents)
}

func TestQueryFilters(t *testing.T) {
	svc := newTestService(t)

	svc.Log(models.LogParams{Category: ocsf.CategoryAuthentication, Activity: ocsf.ActivityAuthenticate, Message: "auth"})
	svc.Log(models.LogParams{Category: ocsf.CategoryDataAccess, Activity: ocsf.ActivityRead, Message: "read", TargetType: "credential"})
	svc.Log(models.LogParams{Category: ocsf.CategoryDataAccess, Activity: ocsf.ActivityDelete, Message: "delete", TargetType: "file"})

	assert.Len(t, svc.Query(models.EventFilter{Category: ocsf.CategoryDataAccess}), 2)
	assert.Len(t, svc.Query(models.EventFilter{Activity: ocsf.ActivityRead}), 1)
	assert.Len(t, svc.Query(models.EventFilter{TargetType: "credential"}), 1)
	assert.Len(t, svc.Query(models.EventFilter{Category: ocsf.CategoryDataAccess, TargetType: "file"}), 1)
	assert.Empty(t, svc.Query(models.EventFilter{Category: ocsf.CategoryAuthorization}))

	// Future start time excludes everything.
	future := time.Now().Add(time.Hour).UnixMilli()
	assert.Empty(t, svc.Query(models.EventFilter{StartTime: future}))
	// A window covering now includes everything plus the init event.
	assert.Len(t, svc.Query(models.EventFilter{StartTime: 1, EndTime: future}), 4)
}

func TestQueryOrderingAndPagination(t *testing.T) {
	svc := newTestService(t)

	for _, msg := range []string{"first", "second", "third"} {
		svc.Log(models.LogParams{Category: ocsf.CategoryApplication, Activity: ocsf.ActivityCreate, Message: msg})
		time.Sleep(2 * time.Millisecond) // distinct millisecond timestamps
	}

	events := svc.Query(models.EventFilter{Category: ocsf.CategoryApplication})
	require.Len(t, events, 3)
	assert.Equal(t, "third", events[0].Message)
	assert.Equal(t, "first", events[2].Message)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i-1].Time, events[i].Time)
	}

	page := svc.Query(models.EventFilter{Category: ocsf.CategoryApplication, Limit: 1, Offset: 1})
	require.Len(t, page, 1)
	assert.Equal(t, "second", page[0].Message)
}

func TestStats(t *testing.T) {
	svc := newTestService(t)

	svc.Log(models.LogParams{Category: ocsf.CategoryAuthentication, Activity: ocsf.ActivityAuthenticate, Message: "a"})
	svc.Log(models.LogParams{Category: ocsf.CategoryAuthentication, Activity: ocsf.ActivityDeny, Message: "b"})
	svc.Log(models.LogParams{Category: ocsf.CategoryDataAccess, Activity: ocsf.ActivityRead, Message: "c"})

	stats := svc.Stats()
	// Initialize logged one system event.
	assert.EqualValues(t, 4, stats.TotalEvents)
	assert.EqualValues(t, 2, stats.ByCategory["authentication"])
	assert.EqualValues(t, 1, stats.ByCategory["data_access"])
	assert.EqualValues(t, 1, stats.ByCategory["system"])
	assert.EqualValues(t, 1, stats.ByActivity["authenticate"])
	assert.EqualValues(t, 1, stats.ByActivity["deny"])
	assert.EqualValues(t, 4, stats.Last24h)
	assert.Greater(t, stats.FileSizeMB, 0.0)
}

func TestStatsUninitialized(t *testing.T) {
	svc := NewAuditService(testConfig(t))

	stats := svc.Stats()
	assert.Zero(t, stats.TotalEvents)
	assert.Empty(t, stats.ByCategory)
	assert.Empty(t, stats.ByActivity)
	assert.Zero(t, stats.FileSizeMB)
}

func TestExportCSV(t *testing.T) {
	svc := newTestService(t)

	svc.Log(models.LogParams{
		Category:  ocsf.CategoryDataAccess,
		Activity:  ocsf.ActivityRead,
		Severity:  ocsf.SeverityMedium,
		Status:    ocsf.StatusSuccess,
		Message:   `said "hello", twice`,
		ActorUser: "bob",
	})

	out := svc.ExportCSV(models.EventFilter{Category: ocsf.CategoryDataAccess})
	require.NotEmpty(t, out)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2) // header + one row

	row := records[1]
	assert.Equal(t, "data_access", row[1])
	assert.Equal(t, "read", row[2])
	assert.Equal(t, "3", row[3])
	assert.Equal(t, "success", row[4])
	assert.Equal(t, "bob", row[5])
	assert.Equal(t, `said "hello", twice`, row[8])

	// Timestamps are ISO-8601.
	_, err = time.Parse(time.RFC3339, row[0])
	assert.NoError(t, err)

	// The raw output carries the doubled internal quotes.
	assert.Contains(t, out, `"said ""hello"", twice"`)
}

func TestExportCSVEmptyIsEmptyString(t *testing.T) {
	svc := newTestService(t)

	out := svc.ExportCSV(models.EventFilter{Category: ocsf.CategoryAuthorization})
	assert.Equal(t, "", out)
}

func TestExportJSON(t *testing.T) {
	svc := newTestService(t)
	svc.Log(models.LogParams{Category: ocsf.CategoryApplication, Activity: ocsf.ActivityCreate, Message: "made a thing"})

	out := svc.ExportJSON(models.EventFilter{Category: ocsf.CategoryApplication})
	var events []models.AuditEvent
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "made a thing", events[0].Message)
}

func TestExportRowCap(t *testing.T) {
	assert.Equal(t, exportRowCap, capFilter(models.EventFilter{Limit: 50000}).Limit)
	assert.Equal(t, exportRowCap, capFilter(models.EventFilter{}).Limit)
	assert.Equal(t, 25, capFilter(models.EventFilter{Limit: 25}).Limit)
}

func TestRotationOnInitialize(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxDBSizeMB = 1
	cfg.MaxRotatedFiles = 2

	// Plant an oversized active file and a few stale rotated files.
	active := filepath.Join(cfg.DataDir, ActiveDBFile)
	require.NoError(t, os.WriteFile(active, make([]byte, 2*1024*1024), 0o600))
	for _, stale := range []string{
		"audit-20200101-000000.db",
		"audit-20210101-000000.db",
		"audit-20220101-000000.db",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, stale), []byte("old"), 0o600))
	}

	svc := NewAuditService(cfg)
	require.True(t, svc.Initialize())
	defer svc.Close()

	// The oversized file was renamed away and a fresh store opened.
	info, err := os.Stat(active)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(1024*1024))

	// No more than MaxRotatedFiles rotated files survive, newest first.
	names, err := svc.rotatedFiles()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(names), cfg.MaxRotatedFiles)
	// The freshly rotated file (current year) sorts newest and is kept.
	require.NotEmpty(t, names)
	assert.Greater(t, names[0], "audit-20220101-000000.db")
}

func TestRotationDuringLog(t *testing.T) {
	cfg := testConfig(t)
	svc := NewAuditService(cfg)
	require.True(t, svc.Initialize())
	defer svc.Close()

	svc.Log(models.LogParams{Category: ocsf.CategoryApplication, Activity: ocsf.ActivityCreate, Message: "before rotation"})

	// Force the next write to rotate.
	cfg.MaxDBSizeMB = 0
	svc.Log(models.LogParams{Category: ocsf.CategoryApplication, Activity: ocsf.ActivityCreate, Message: "after rotation"})
	cfg.MaxDBSizeMB = 10

	// The store reopened transparently and kept accepting writes.
	time.Sleep(2 * time.Millisecond)
	svc.Log(models.LogParams{Category: ocsf.CategoryApplication, Activity: ocsf.ActivityCreate, Message: "steady state"})
	events := svc.Query(models.EventFilter{Category: ocsf.CategoryApplication})
	require.NotEmpty(t, events)
	assert.Equal(t, "steady state", events[0].Message)

	names, err := svc.rotatedFiles()
	require.NoError(t, err)
	assert.NotEmpty(t, names)
}

func TestPurgeOlderThan(t *testing.T) {
	svc := newTestService(t)
	svc.Log(models.LogParams{Category: ocsf.CategoryApplication, Activity: ocsf.ActivityCreate, Message: "old enough"})

	// Nothing is older than a day.
	assert.Zero(t, svc.PurgeOlderThan(24*time.Hour))

	// Everything is older than "now".
	time.Sleep(2 * time.Millisecond)
	removed := svc.PurgeOlderThan(0)
	assert.GreaterOrEqual(t, removed, int64(2))
}

func TestCloseIsIdempotent(t *testing.T) {
	svc := NewAuditService(testConfig(t))
	require.True(t, svc.Initialize())

	svc.Close()
	svc.Close() // must not panic

	// Post-close logging degrades to a silent drop.
	svc.Log(models.LogParams{Category: ocsf.CategoryApplication, Activity: ocsf.ActivityCreate, Message: "late"})
}

func TestConvenienceWrappers(t *testing.T) {
	svc := newTestService(t)

	svc.LogIPCCall("credentials.get", "ui", ocsf.StatusSuccess, "")
	svc.LogCredentialAccess("db-password", "alice", ocsf.StatusFailure)
	svc.LogDataAccess("report", "q3-summary", "bob")

	events := svc.Query(models.EventFilter{TargetType: "credential"})
	require.Len(t, events, 1)
	assert.Equal(t, ocsf.SeverityHigh, events[0].Severity)
	assert.Equal(t, ocsf.CategoryAuthentication, events[0].Category)

	events = svc.Query(models.EventFilter{TargetType: "ipc_method"})
	require.Len(t, events, 1)
	assert.Equal(t, ocsf.ActivityExecute, events[0].Activity)

	events = svc.Query(models.EventFilter{Category: ocsf.CategoryDataAccess})
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Actor)
	assert.Equal(t, "bob", events[0].Actor.User)
}
