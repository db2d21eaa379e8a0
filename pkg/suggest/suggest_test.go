package suggest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/covarchive/pkg/suggest"
)

func TestDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"Core", "Core", 0},
		{"héllo", "hello", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, suggest.Distance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
		assert.Equal(t, tt.want, suggest.Distance(tt.b, tt.a), "%q vs %q", tt.b, tt.a)
	}
}

func TestClosest(t *testing.T) {
	t.Parallel()

	candidates := []string{"Core", "Cart", "Checkout", "App"}

	assert.Equal(t, []string{"Core"}, suggest.Closest("core", candidates, -1))
	assert.Equal(t, []string{"Core", "Cart"}, suggest.Closest("Cort", candidates, -1))
	assert.Empty(t, suggest.Closest("Networking", candidates, -1))
	assert.Equal(t, []string{"App"}, suggest.Closest("Apq", candidates, 1))
	assert.Empty(t, suggest.Closest("Apqq", candidates, 1))
}

func TestHint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "; did you mean Checkout?", suggest.Hint("Chekout", []string{"Core", "Checkout"}))
	assert.Empty(t, suggest.Hint("zzz", []string{"Core", "Checkout"}))
}
