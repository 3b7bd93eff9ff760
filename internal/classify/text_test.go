package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDate(t *testing.T) {
	tests := []struct {
		text string
		want time.Time
	}{
		{"last date 12 march 2025 for all posts", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)},
		{"dated 3rd-Feb-2026", time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)},
		{"published: 01 sept. 2025", time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)},
		{"issue 7 dec, 2024 then 9 jan 2025", time.Date(2024, 12, 7, 0, 0, 0, 0, time.UTC)},
		{"31 feb 2025 is invalid, 28 feb 2025 is not", time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ExtractDate(tt.text, time.UTC)
			require.True(t, ok)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}

func TestExtractDate_None(t *testing.T) {
	for _, text := range []string{"", "no dates here", "2025-03-12", "march 2025", "version 12 may"} {
		_, ok := ExtractDate(text, time.UTC)
		assert.False(t, ok, text)
	}
}

func TestNormalizeText(t *testing.T) {
	got := NormalizeText("<div>  Hello\n\t<b>World</b> <style>.x{}</style></div>", 0)
	assert.Equal(t, "hello world", got)

	assert.Equal(t, "héllo", NormalizeText("<p>HÉLLO wörld</p>", 5))
}

func TestAgeDays(t *testing.T) {
	now := time.Date(2026, 10, 17, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, 0, AgeDays(time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 46, AgeDays(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, -3, AgeDays(time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), now))
}
