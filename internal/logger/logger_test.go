package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetLevel("info")
		SetOutput(os.Stdout)
	})

	SetLevel("warn")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
}

func TestInfoBlockSplitsLines(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })
	SetLevel("info")

	InfoBlock("first\nsecond\n")
	assert.Equal(t, 2, strings.Count(buf.String(), "level=INFO"))
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	SetFormat("json", &buf)
	t.Cleanup(func() { SetFormat("text", os.Stdout) })
	SetLevel("info")

	With("ticker", "AAPL").Info("scored")
	assert.Contains(t, buf.String(), `"ticker":"AAPL"`)
}
