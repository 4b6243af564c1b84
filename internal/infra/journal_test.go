package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// newTestJournal creates an encrypted journal in a temp directory.
func newTestJournal(t *testing.T) (*EncryptedJournal, string, []byte) {
	t.Helper()
	dataDir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	j, err := NewEncryptedJournal(dataDir, key)
	require.NoError(t, err)

	t.Cleanup(func() { j.Close() })
	return j, dataDir, key
}

func countdown(n int) *int { return &n }

func TestEncryptedJournal_RecordAndReadTicks(t *testing.T) {
	j, _, _ := newTestJournal(t)

	require.NoError(t, j.BeginRun(domain.RunInfo{ID: "run-1", Level: "gateway", Seed: 7, StartedAt: time.Now()}))

	reports := []domain.TickReport{
		{
			Tick: 1,
			Outcomes: []domain.Outcome{
				{Intent: 1, Node: "fw", Action: domain.ActionStop, Status: domain.StatusExecuted, Success: true, Roll: 0.2, Probability: 0.5, Cost: 8, NewState: domain.StateRestarting, ProbeDelta: 1},
			},
			Changes:    []domain.StateChange{{Node: "fw", From: domain.StateActive, To: domain.StateRestarting}},
			ProbeDelta: 1,
			ProbeLevel: 1,
		},
		{
			Tick:           2,
			ThreatLevel:    6,
			AlarmCountdown: countdown(3),
			Pending:        []domain.PendingResponse{{Daemon: "d1", Target: "fw", Trigger: domain.TriggerTimer, DueTick: 4}},
		},
	}
	for _, r := range reports {
		require.NoError(t, j.RecordTick("run-1", r))
	}

	got, err := j.Ticks("run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, reports[0].Outcomes, got[0].Outcomes)
	assert.Equal(t, reports[0].Changes, got[0].Changes)
	require.NotNil(t, got[1].AlarmCountdown)
	assert.Equal(t, 3, *got[1].AlarmCountdown)
	assert.Equal(t, reports[1].Pending, got[1].Pending)
}

func TestEncryptedJournal_RecordTick_UnknownRun(t *testing.T) {
	j, _, _ := newTestJournal(t)

	err := j.RecordTick("ghost", domain.TickReport{Tick: 1})
	assert.Error(t, err)
	assert.Error(t, j.EndRun("ghost", domain.Termination{Reason: domain.ReasonTimeExhausted}))
}

func TestEncryptedJournal_ListRuns(t *testing.T) {
	j, _, _ := newTestJournal(t)

	start := time.Now()
	require.NoError(t, j.BeginRun(domain.RunInfo{ID: "old", Level: "a", StartedAt: start}))
	require.NoError(t, j.BeginRun(domain.RunInfo{ID: "new", Level: "b", Seed: 3, StartedAt: start.Add(time.Minute)}))
	require.NoError(t, j.RecordTick("old", domain.TickReport{Tick: 1}))
	require.NoError(t, j.EndRun("old", domain.Termination{Reason: domain.ReasonAlarmTriggered, Tick: 1}))

	runs, err := j.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "new", runs[0].ID)
	assert.Nil(t, runs[0].EndedAt)
	assert.Equal(t, int64(3), runs[0].Seed)

	assert.Equal(t, "old", runs[1].ID)
	assert.NotNil(t, runs[1].EndedAt)
	assert.Equal(t, domain.ReasonAlarmTriggered, runs[1].Reason)
	assert.Equal(t, 1, runs[1].Ticks)
}

func TestEncryptedJournal_DuplicateRun(t *testing.T) {
	j, _, _ := newTestJournal(t)

	info := domain.RunInfo{ID: "dup", StartedAt: time.Now()}
	require.NoError(t, j.BeginRun(info))
	assert.Error(t, j.BeginRun(info))
	assert.Error(t, j.BeginRun(domain.RunInfo{}))
}

func TestEncryptedJournal_WrongKeyFails(t *testing.T) {
	j, dataDir, _ := newTestJournal(t)
	require.NoError(t, j.BeginRun(domain.RunInfo{ID: "run", StartedAt: time.Now()}))
	require.NoError(t, j.Close())

	wrong, err := GenerateKey()
	require.NoError(t, err)

	_, err = NewEncryptedJournal(dataDir, wrong)
	assert.Error(t, err)
}

func TestEncryptedJournal_ReopenWithSameKey(t *testing.T) {
	j, dataDir, key := newTestJournal(t)
	require.NoError(t, j.BeginRun(domain.RunInfo{ID: "run", Level: "gateway", StartedAt: time.Now()}))
	require.NoError(t, j.RecordTick("run", domain.TickReport{Tick: 1, ProbeLevel: 2}))
	require.NoError(t, j.Close())

	reopened, err := NewEncryptedJournal(dataDir, key)
	require.NoError(t, err)
	defer reopened.Close()

	ticks, err := reopened.Ticks("run")
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, 2, ticks[0].ProbeLevel)
	assert.FileExists(t, reopened.Path())
}
