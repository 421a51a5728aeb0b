package roster_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/roster"
)

func pct(v float64) *float64 { return &v }

func TestProject(t *testing.T) {
	assert.Equal(t, 80.0, roster.Project(80, nil))
	assert.Equal(t, 75.5, roster.Project(80, pct(75.5)))
	assert.Equal(t, 0.0, roster.Project(0, nil))
	assert.Equal(t, 0.0, roster.Project(50, pct(0)))
}

func TestApplyPercentageOnlyMovesOnServerValue(t *testing.T) {
	r := roster.New([]roster.Entry{
		{Student: roster.Student{ID: "u1", StudentID: "2023-1234"}, EnrollmentID: "enr1", Percentage: 90},
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, 90.0, r.ApplyPercentage("2023-1234", nil))
	}
	assert.Equal(t, 91.5, r.ApplyPercentage("u1", pct(91.5)))
	e, ok := r.Lookup("2023-1234")
	require.True(t, ok)
	assert.Equal(t, 91.5, e.Percentage)
}

func TestLookupByEitherID(t *testing.T) {
	r := roster.New([]roster.Entry{
		{Student: roster.Student{ID: "u1", StudentID: "2023-1234"}},
		{Student: roster.Student{ID: "u2"}},
	})
	_, ok := r.Lookup("u1")
	assert.True(t, ok)
	_, ok = r.Lookup("2023-1234")
	assert.True(t, ok)
	_, ok = r.Lookup("nobody")
	assert.False(t, ok)
	assert.Equal(t, []string{"2023-1234", "u2"}, r.Keys())
}

func TestCache(t *testing.T) {
	c, err := roster.NewCache(time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("sec1")
	assert.False(t, ok)

	c.Put("sec1", []roster.Entry{{Student: roster.Student{ID: "u1"}}})
	got, ok := c.Get("sec1")
	require.True(t, ok)
	assert.Len(t, got, 1)
}
