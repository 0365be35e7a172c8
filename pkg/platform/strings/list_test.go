package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompact(t *testing.T) {
	assert.Equal(t, []string{"foo", "bar"}, Compact([]string{"  foo ", "bar", "foo", "", "  "}))
	assert.Empty(t, Compact(nil))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t,
		[]string{"kafka-1:9092", "kafka-2:9092"},
		SplitList("kafka-1:9092, kafka-2:9092,,kafka-1:9092"),
	)
	assert.Equal(t, []string{"10.0.0.0/8"}, SplitList(" 10.0.0.0/8 "))
	assert.Empty(t, SplitList(""))
}
