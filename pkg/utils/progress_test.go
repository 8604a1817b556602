package utils

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageProgress(t *testing.T) {
	var buf bytes.Buffer
	sp := NewStageProgress(&buf)

	sp.StageStarted("Extract", 1, 4)
	sp.StageFinished("Extract", nil)
	sp.StageStarted("Decode", 2, 4)
	sp.StageFinished("Decode", errors.New("boom"))
	sp.Finish()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 5)
	assert.Contains(t, lines[0], " 1/4  Extract ...")
	assert.True(t, strings.HasPrefix(lines[0], "["+strings.Repeat(".", 28)+"]"))
	assert.Contains(t, lines[1], "Extract done")
	assert.True(t, strings.HasPrefix(lines[2], "["+strings.Repeat("#", 7)+strings.Repeat(".", 21)+"]"))
	assert.Contains(t, lines[3], "Decode failed after")
	assert.Contains(t, lines[4], "Total time:")

	assert.Equal(t, []string{"Extract"}, sp.Completed())
}
