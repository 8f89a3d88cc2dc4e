package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	utc := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	assert.True(t, ParseDate("2024-01-02T10:00:00Z").Equal(utc))
	assert.True(t, ParseDate("2024-01-02T10:00:00.000Z").Equal(utc))
	assert.True(t, ParseDate("2024-01-02T12:00:00+02:00").Equal(utc))

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.Local), ParseDate("2024-01-02"))
	assert.Equal(t, time.Date(2024, 3, 15, 9, 5, 0, 0, time.Local), ParseDate("15-03-2024 09:05"))
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local), ParseDate("15-03-2024"))
}

func TestParseDateFallsBackToMinDate(t *testing.T) {
	assert.Equal(t, MinDate, ParseDate(""))
	assert.Equal(t, MinDate, ParseDate("yesterday"))
	assert.True(t, ParseDate("garbage").Before(ParseDate("2000-01-01")))
}
