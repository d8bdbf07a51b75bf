package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amble/internal/models"
)

func TestResolve(t *testing.T) {
	st := NewStore(time.Hour)

	s1, created := st.Resolve("", "u1")
	require.True(t, created)
	require.NotEmpty(t, s1.ID)

	s2, created := st.Resolve(s1.ID, "u1")
	assert.False(t, created)
	assert.Same(t, s1, s2)

	// A client-chosen id that is unknown is honoured.
	s3, created := st.Resolve("client-session", "u1")
	assert.True(t, created)
	assert.Equal(t, "client-session", s3.ID)

	// Another user's session id is never shared.
	s4, created := st.Resolve(s1.ID, "u2")
	assert.True(t, created)
	assert.NotEqual(t, s1.ID, s4.ID)
	assert.Equal(t, "u2", s4.UserKey)

	assert.Equal(t, 3, st.Count())
}

func TestResolveExpired(t *testing.T) {
	st := NewStore(20 * time.Millisecond)
	s1, _ := st.Resolve("", "u1")
	time.Sleep(40 * time.Millisecond)

	s2, created := st.Resolve(s1.ID, "u1")
	assert.True(t, created)
	assert.NotSame(t, s1, s2)
	assert.False(t, s2.Initialized())
}

func TestLoadProfile(t *testing.T) {
	st := NewStore(time.Hour)
	s, _ := st.Resolve("", "u1")
	require.False(t, s.Initialized())

	p := &models.UserProfile{UserKey: "u1", Name: "Asha", Location: "Pune", Timezone: "Asia/Kolkata"}
	p.SetPreference(models.PrefInterests, []interface{}{"reading", "gardening"})
	s.LoadProfile(p)

	assert.True(t, s.Initialized())
	assert.Equal(t, "Asha", s.GetString(KeyUserName))
	assert.Equal(t, "reading, gardening", s.GetString(KeyUserInterests))

	snap := s.Snapshot()
	snap[KeyUserName] = "changed"
	assert.Equal(t, "Asha", s.GetString(KeyUserName), "snapshot must be a copy")
}
