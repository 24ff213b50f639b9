package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringSlice(t *testing.T) {
	assert.Nil(t, StringSlice(nil, nil))
	assert.Nil(t, StringSlice([]string{"a", "b"}, []string{"a", "b"}))
	assert.Equal(t, ErrNotEqual, StringSlice([]string{"a"}, []string{"a", "b"}))
	assert.Equal(t, ErrNotEqual, StringSlice([]string{"a", "c"}, []string{"a", "b"}))
}
