package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheExpiry(t *testing.T) {
	c := New(Options{DefaultExpiration: time.Minute})
	defer c.Close()

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("board", 42)
	v, ok := c.Get("board")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok = c.Get("board")
	assert.False(t, ok)
}

func TestCacheEvictsWhenFull(t *testing.T) {
	c := New(Options{DefaultExpiration: time.Minute, MaxItems: 2})
	defer c.Close()

	var evicted []string
	c.SetOnEvicted(func(k string, _ any) { evicted = append(evicted, k) })

	c.SetWithExpiration("a", 1, time.Second)
	c.SetWithExpiration("b", 2, time.Hour)
	c.SetWithExpiration("c", 3, time.Hour)

	assert.Equal(t, 2, c.Count())
	assert.Equal(t, []string{"a"}, evicted)
}

func TestCacheDeletePrefix(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	c.Set("leaderboard:code:all_time:10", 1)
	c.Set("leaderboard:code:weekly:10", 2)
	c.Set("leaderboard:overall:all_time:10", 3)

	c.DeletePrefix("leaderboard:code:")
	assert.Equal(t, 1, c.Count())
}
