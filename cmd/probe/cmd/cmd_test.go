package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dcivFile is a 0 -> 3 -> 0 sweep with a tenfold resistance change on the
// way back.
func dcivFile(offset float64) string {
	var b strings.Builder
	b.WriteString("Measurement Number\tMeasurement ID\n7\t739722.5\n\n")
	b.WriteString("Bias1\tBias2\tStep\n0\t3\t0.5\n\n")
	b.WriteString("RealMeasuredPoints\n13\n\n")
	b.WriteString("Measurement type\nDC IV\n\n")
	b.WriteString("Bias\tCurrent\tTime\n")
	for k := 0; k <= 12; k++ {
		v := float64(k) * 0.5
		r := 1e3
		if k > 6 {
			v = float64(12-k) * 0.5
			r = 1e4
		}
		fmt.Fprintf(&b, "%g\t%g\t%g\n", v, (v-offset)/r, float64(k))
	}
	return b.String()
}

func writeSession(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for i, content := range files {
		path := filepath.Join(dir, fmt.Sprintf("%d.data", i+1))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PROBE_LOGGING_LEVEL", "error")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestInfo(t *testing.T) {
	dir := writeSession(t, dcivFile(0))
	out, err := execute(t, "info", filepath.Join(dir, "1.data"))
	require.NoError(t, err)
	assert.Contains(t, out, "Mode:        DC IV")
	assert.Contains(t, out, "#7")
	assert.Contains(t, out, "RealMeasuredPoints")
	assert.Contains(t, out, "13 rows: Bias, Current, Time")
}

func TestAnalyzeDCIV(t *testing.T) {
	dir := writeSession(t, dcivFile(0))
	out, err := execute(t, "analyze", filepath.Join(dir, "1.data"), "--voltage", "1.25")
	require.NoError(t, err)
	assert.Contains(t, out, "Resistance ratio")
	assert.Contains(t, out, "Summary:")
	assert.Contains(t, out, "Voltage at min current")
}

func TestExport(t *testing.T) {
	dir := writeSession(t, dcivFile(0))
	src := filepath.Join(dir, "1.data")

	t.Run("xlsx", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "out.xlsx")
		out, err := execute(t, "export", src, target, "--format", "xlsx")
		require.NoError(t, err)
		assert.Contains(t, out, target)
		assert.FileExists(t, target)
	})

	t.Run("parquet", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "out")
		_, err := execute(t, "export", src, target, "--format", "parquet")
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(target, "data.parquet"))
		assert.FileExists(t, filepath.Join(target, "summary.parquet"))
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := execute(t, "export", src, filepath.Join(t.TempDir(), "x"), "--format", "csv")
		assert.Error(t, err)
	})
}

func TestBatch(t *testing.T) {
	dir := writeSession(t, dcivFile(0.5), dcivFile(1), dcivFile(1.5))
	out, err := execute(t, "batch", dir, "--ignore", "2", "--drain", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "2 files")
	assert.Contains(t, out, "Threshold curve:")
	assert.Contains(t, out, "1.data")
	assert.Contains(t, out, "3.data")
	assert.NotContains(t, out, "2.data")
	assert.Contains(t, out, "Input curves:")
}

func TestInvalidPadSize(t *testing.T) {
	dir := writeSession(t, dcivFile(0))
	_, err := execute(t, "info", filepath.Join(dir, "1.data"), "--pad-size", "-1")
	assert.Error(t, err)
}
