package episode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSplit_Resolve(t *testing.T) {
	cases := []struct {
		expr     string
		n        int
		from, to int
	}{
		{"train", 10, 0, 10},
		{"train[:1]", 10, 0, 1},
		{"train[2:]", 10, 2, 10},
		{"train[2:5]", 10, 2, 5},
		{"train[-3:]", 10, 7, 10},
		{"train[:-1]", 10, 0, 9},
		{"train[3]", 10, 3, 4},
		{"train[-1]", 10, 9, 10},
		{"train[:10%]", 20, 0, 2},
		{"train[50%:]", 20, 10, 20},
		{"train[:100]", 5, 0, 5},
		{"train[8:2]", 10, 8, 8},
	}
	for _, c := range cases {
		t.Run(c.expr, func(t *testing.T) {
			spec, err := ParseSplit(c.expr)
			require.NoError(t, err)
			assert.Equal(t, "train", spec.Name)
			from, to := spec.Resolve(c.n)
			assert.Equal(t, c.from, from, "from")
			assert.Equal(t, c.to, to, "to")
		})
	}
}

func TestParseSplit_Invalid(t *testing.T) {
	for _, expr := range []string{"", "train[", "train[1:2:3]", "train[a:]", "train[:5%", "train[1:50%]", "train[:150%]", "train[5%]"} {
		_, err := ParseSplit(expr)
		assert.True(t, errors.Is(err, ErrBadSplit), "expr %q: %v", expr, err)
	}
}
