package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadingPosition_SupersededBy_NewerWins(t *testing.T) {
	current := &ReadingPosition{UpdatedAt: time.UnixMilli(100)}
	incoming := &ReadingPosition{UpdatedAt: time.UnixMilli(200)}

	assert.True(t, current.SupersededBy(incoming))
	assert.False(t, incoming.SupersededBy(current))
}

func TestReadingPosition_SupersededBy_TieGoesToIncoming(t *testing.T) {
	current := &ReadingPosition{UpdatedAt: time.UnixMilli(100)}
	incoming := &ReadingPosition{UpdatedAt: time.UnixMilli(100)}

	assert.True(t, current.SupersededBy(incoming), "retried uploads must converge")
}

func TestReadingPosition_IsFinished(t *testing.T) {
	assert.False(t, (&ReadingPosition{Percent: 0.5}).IsFinished())
	assert.True(t, (&ReadingPosition{Percent: 0.99}).IsFinished())
	assert.True(t, (&ReadingPosition{Percent: 1.0}).IsFinished())
}
