package quickchat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeenSetClearsPastCap(t *testing.T) {
	s := NewSeenSet(0)
	for id := int64(1); id <= DefaultSeenCap; id++ {
		assert.False(t, s.Add(id))
	}
	assert.Equal(t, DefaultSeenCap, s.Len())
	assert.True(t, s.Has(5))

	assert.True(t, s.Add(DefaultSeenCap+1), "the 1001st id clears the set")
	assert.Equal(t, 0, s.Len())

	// a replayed low id is no longer recognized; this is the accepted cost of
	// clearing wholesale instead of evicting
	assert.False(t, s.Has(5))
}

func TestSeenSetReAddIsNoop(t *testing.T) {
	s := NewSeenSet(2)
	s.Add(1)
	s.Add(1)
	s.Add(2)
	assert.Equal(t, 2, s.Len())
	s.Reset()
	assert.Equal(t, 0, s.Len())
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 1, Seconds(0))
	assert.Equal(t, 1, Seconds(300*time.Millisecond))
	assert.Equal(t, 5, Seconds(4200*time.Millisecond))
	assert.Equal(t, 6, Seconds(6*time.Second))
}
