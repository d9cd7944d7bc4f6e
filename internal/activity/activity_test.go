package activity_test

import (
	"sync"
	"testing"
	"time"

	"github.com/programme-lv/assessor/internal/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CountsAndLanguages(t *testing.T) {
	r := activity.NewRecorder(nil)

	r.Record("a", activity.Run, "python3")
	r.Record("a", activity.Run, "python3")
	r.Record("a", activity.Submit, "cpp17")
	r.Record("a", activity.Save, "")
	r.Record("b", activity.Login, "")

	s := r.Summary("a")
	assert.Equal(t, int64(2), s.Count(activity.Run))
	assert.Equal(t, int64(1), s.Count(activity.Submit))
	assert.Equal(t, int64(1), s.Count(activity.Save))
	assert.Equal(t, int64(1), s.Count(activity.LanguageSwitch))
	assert.Equal(t, []string{"cpp17", "python3"}, s.Languages)
	assert.Equal(t, int64(0), s.Count(activity.Login))

	assert.Equal(t, 2, r.Tracked())
	r.Forget("b")
	assert.Equal(t, 1, r.Tracked())
	assert.Equal(t, int64(0), r.Summary("b").Count(activity.Login))
}

func TestRecorder_Concurrent(t *testing.T) {
	r := activity.NewRecorder(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record("a", activity.Erase, "")
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), r.Summary("a").Count(activity.Erase))
}

func TestRecorder_Idle(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	r := activity.NewRecorder(func() time.Time { return now })
	started := now.Add(-20 * time.Minute)

	assert.True(t, r.Idle("a", started, 15*time.Minute))

	r.Record("a", activity.Run, "go")
	assert.False(t, r.Idle("a", started, 15*time.Minute))
}

func TestParseKind(t *testing.T) {
	k, err := activity.ParseKind("logout")
	require.NoError(t, err)
	assert.Equal(t, activity.Logout, k)

	_, err = activity.ParseKind("dance")
	assert.Error(t, err)
}
