package progress

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCIReporterQuarters(t *testing.T) {
	var out bytes.Buffer
	rep := &CIReporter{out: &out}
	rep.Start(100, "upload")

	data, err := io.ReadAll(Reader(strings.NewReader(strings.Repeat("x", 100)), rep))
	require.NoError(t, err)
	rep.Finish()

	assert.Len(t, data, 100)
	text := out.String()
	for _, want := range []string{"upload: 100 bytes", "upload: 25%", "upload: 50%", "upload: 75%", "upload: 100%", "upload: done (100 bytes)"} {
		assert.Contains(t, text, want)
	}
	assert.Equal(t, 1, strings.Count(text, "upload: 100%"))
}

func TestNewReporterInCI(t *testing.T) {
	t.Setenv("CI", "true")
	_, ok := NewReporter().(*CIReporter)
	assert.True(t, ok)
}
