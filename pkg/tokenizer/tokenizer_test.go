package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokenCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace", "  \n\t", 0},
		{"one word", "hello", 1},
		{"three words", "one two three", 4},
		{"eight words", "one two three four five six seven eight", 11},
		{"seventy five words rounds exactly", repeatWord(75), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokenCount(tt.text))
		})
	}
}

func TestEstimateTokenCount_Range(t *testing.T) {
	got := EstimateTokenCount("one two three four five six seven eight")
	assert.Greater(t, got, 0)
	assert.Less(t, got, 20)
}

func TestEstimateCounter(t *testing.T) {
	var c Counter = EstimateCounter{}
	assert.Equal(t, EstimateTokenCount("a b c d"), c.Count("a b c d"))
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, CountWords(""))
	assert.Equal(t, 3, CountWords(" a  b\nc "))
}

func repeatWord(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += " "
		}
		s += "w"
	}
	return s
}
