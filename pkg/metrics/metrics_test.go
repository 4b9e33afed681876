package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAnswer(t *testing.T) {
	assert.Equal(t, "eiffel tower", NormalizeAnswer("The Eiffel Tower."))
	assert.Equal(t, "new york", NormalizeAnswer("  New   York  "))
	assert.Equal(t, "answer", NormalizeAnswer("an Answer"))
}

func TestExactMatch(t *testing.T) {
	assert.Equal(t, 1.0, ExactMatch("The Eiffel Tower", "eiffel tower"))
	assert.Equal(t, 0.0, ExactMatch("eiffel tower", "louvre"))
}

func TestF1(t *testing.T) {
	assert.Equal(t, 1.0, F1("new york city", "New York City"))
	assert.Equal(t, 0.0, F1("paris", "london"))
	assert.InDelta(t, 0.8, F1("new york city", "new york"), 1e-9)
	assert.Equal(t, 0.0, F1("", "something"))
}

func TestMaxOverGroundTruths(t *testing.T) {
	truths := []string{"london", "paris", "the paris"}
	assert.Equal(t, 1.0, MaxOverGroundTruths(ExactMatch, "Paris", truths))
	assert.Equal(t, 0.0, MaxOverGroundTruths(ExactMatch, "rome", truths))
	assert.Equal(t, 0.0, MaxOverGroundTruths(ExactMatch, "rome", nil))
}

func TestAverageMeter(t *testing.T) {
	var m AverageMeter
	assert.Equal(t, 0.0, m.Avg())

	m.Update(1, 1)
	m.Update(0, 1)
	assert.InDelta(t, 0.5, m.Avg(), 1e-9)
	assert.Equal(t, 2, m.Count())

	m.Update(1, 2)
	assert.InDelta(t, 0.75, m.Avg(), 1e-9)

	m.Reset()
	assert.Equal(t, 0.0, m.Avg())
	assert.Equal(t, 0, m.Count())
}
