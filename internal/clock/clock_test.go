package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_Advance(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)

	assert.Equal(t, start, f.Now())
	f.Advance(25 * time.Hour)
	assert.Equal(t, start.Add(25*time.Hour), f.Now())

	f.Set(start)
	assert.Equal(t, start, f.Now())
}

func TestReal_IsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Real().Now().Location())
}
