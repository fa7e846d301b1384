package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func at(s *Store, ts time.Time) {
	s.now = func() time.Time { return ts }
}

func TestRecordAndCountToday(t *testing.T) {
	s := openTestStore(t)
	noon := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)

	at(s, noon.Add(-24*time.Hour))
	require.NoError(t, s.RecordAction(ActionConnectionRequest))

	at(s, noon.Add(-2*time.Hour))
	require.NoError(t, s.RecordAction(ActionConnectionRequest))
	require.NoError(t, s.RecordAction(ActionLogin))

	at(s, noon)
	require.NoError(t, s.RecordAction(ActionConnectionRequest))

	today, err := s.ActionsToday(ActionConnectionRequest)
	require.NoError(t, err)
	assert.Equal(t, 2, today)

	lastHour, err := s.ActionsInLastHour(ActionConnectionRequest)
	require.NoError(t, err)
	assert.Equal(t, 1, lastHour)

	logins, err := s.ActionsToday(ActionLogin)
	require.NoError(t, err)
	assert.Equal(t, 1, logins)
}

func TestCleanupOldActions(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)

	at(s, now.Add(-Retention-time.Hour))
	require.NoError(t, s.RecordAction(ActionProfileVisit))
	at(s, now.Add(-time.Hour))
	require.NoError(t, s.RecordAction(ActionProfileVisit))

	at(s, now)
	deleted, err := s.CleanupOldActions()
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	actions, err := s.RecentActions(10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionProfileVisit, actions[0].ActionType)
	assert.Equal(t, now.Add(-time.Hour).Unix(), actions[0].Timestamp.Unix())
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordAction(ActionLogin))
	require.NoError(t, s.RecordAction(ActionConnectionRequest))
	require.NoError(t, s.RecordAction(ActionConnectionRequest))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats["total_actions"])
	assert.Equal(t, 1, stats["logins_today"])
	assert.Equal(t, 2, stats["connection_requests_today"])
	assert.Equal(t, 0, stats["profile_visits_today"])
}

func TestLedgerSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordAction(ActionConnectionRequest))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.ActionsToday(ActionConnectionRequest)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCloseNilStore(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
}
