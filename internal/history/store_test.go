package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twistedxcom/vigil/internal/monitor"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func snap(at time.Time, global monitor.DisplayStatus, apps ...monitor.AppInfo) monitor.StatusSnapshot {
	return monitor.StatusSnapshot{Apps: apps, Global: global, At: at}
}

func TestStore_FirstSnapshotRecordsEverything(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	err := s.Record(snap(now, monitor.StatusIdle,
		monitor.AppInfo{PID: 1, Name: "editor", Status: monitor.StatusIdle},
		monitor.AppInfo{PID: 2, Name: "terminal", Status: monitor.StatusActive},
	))
	require.NoError(t, err)

	got, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	scopes := map[string]monitor.DisplayStatus{}
	for _, tr := range got {
		scopes[tr.Scope] = tr.Status
	}
	require.Equal(t, monitor.StatusIdle, scopes["global"])
	require.Equal(t, monitor.StatusIdle, scopes["editor"])
	require.Equal(t, monitor.StatusActive, scopes["terminal"])
}

func TestStore_UnchangedSnapshotRecordsNothing(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	one := snap(now, monitor.StatusIdle, monitor.AppInfo{PID: 1, Name: "editor", Status: monitor.StatusIdle})

	require.NoError(t, s.Record(one))
	require.NoError(t, s.Record(snap(now.Add(time.Second), monitor.StatusIdle,
		monitor.AppInfo{PID: 1, Name: "editor", Status: monitor.StatusIdle})))

	got, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 2, "steady state must not grow the journal")
}

func TestStore_RecordsOnlyTheChangedScope(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	require.NoError(t, s.Record(snap(now, monitor.StatusIdle,
		monitor.AppInfo{PID: 1, Name: "editor", Status: monitor.StatusIdle},
		monitor.AppInfo{PID: 2, Name: "terminal", Status: monitor.StatusIdle})))

	// Only the editor changes; global flips with it.
	require.NoError(t, s.Record(snap(now.Add(time.Second), monitor.StatusActive,
		monitor.AppInfo{PID: 1, Name: "editor", Status: monitor.StatusActive},
		monitor.AppInfo{PID: 2, Name: "terminal", Status: monitor.StatusIdle})))

	got, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, tr := range got {
		require.Equal(t, monitor.StatusActive, tr.Status)
		require.Contains(t, []string{"global", "editor"}, tr.Scope)
	}
}

func TestStore_DepartedAppGetsTerminalRow(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	require.NoError(t, s.Record(snap(now, monitor.StatusActive,
		monitor.AppInfo{PID: 1, Name: "editor", Status: monitor.StatusActive})))
	require.NoError(t, s.Record(snap(now.Add(time.Second), monitor.StatusNotRunning)))

	got, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, tr := range got {
		require.Equal(t, monitor.StatusNotRunning, tr.Status)
	}
}

func TestStore_RecentOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()

	statuses := []monitor.DisplayStatus{
		monitor.StatusIdle, monitor.StatusActive, monitor.StatusPositiveWork,
	}
	for i, st := range statuses {
		require.NoError(t, s.Record(snap(base.Add(time.Duration(i)*time.Second), st)))
	}

	got, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, monitor.StatusPositiveWork, got[0].Status, "newest first")
	require.Equal(t, monitor.StatusActive, got[1].Status)
}

func TestStore_Prune(t *testing.T) {
	s := openTestStore(t)

	old := snap(time.Now().Add(-48*time.Hour), monitor.StatusIdle)
	require.NoError(t, s.Record(old))
	require.NoError(t, s.Record(snap(time.Now(), monitor.StatusActive)))

	removed, err := s.Prune(24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	got, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, monitor.StatusActive, got[0].Status)
}

func TestStore_AttachJournalsPublishes(t *testing.T) {
	s := openTestStore(t)
	pub := monitor.NewPublisher()
	s.Attach(pub)

	pub.Publish(snap(time.Now(), monitor.StatusActive,
		monitor.AppInfo{PID: 7, Name: "editor", Status: monitor.StatusActive}))

	got, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(snap(time.Now(), monitor.StatusIdle)))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
