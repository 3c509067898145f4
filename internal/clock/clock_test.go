package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalUID(t *testing.T) {
	assert.Equal(t, "SBX035", CanonicalUID("sbx035"))
	assert.Equal(t, "SBX035", CanonicalUID("SbX035"))
	assert.Equal(t, "SBX035", CanonicalUID("  sbx035  "))
}

func TestHours(t *testing.T) {
	assert.InDelta(t, 1.37, Hours(82*time.Minute), 0.001)
	assert.InDelta(t, 0.0, Hours(0), 0.001)
}

func TestFixedClock(t *testing.T) {
	now := time.Date(2013, 9, 3, 9, 52, 0, 0, time.UTC)
	c := Fixed(now)
	assert.True(t, c.Now().Equal(now))
}
