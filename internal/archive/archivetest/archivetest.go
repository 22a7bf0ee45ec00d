// Package archivetest builds daily kline archives for tests.
package archivetest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// KlineCSV renders n consecutive headerless kline rows starting at the
// beginning of date, spaced by step.
func KlineCSV(date time.Time, n int, step time.Duration) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		open := date.Add(time.Duration(i) * step)
		closeTime := open.Add(step - time.Millisecond)
		price := 42000.0 + float64(i)
		fmt.Fprintf(&sb, "%d,%.2f,%.2f,%.2f,%.2f,%.5f,%d,%.5f,%d,%.5f,%.5f,0\n",
			open.UnixMilli(),
			price, price+10, price-10, price+5,
			1.5+float64(i),
			closeTime.UnixMilli(),
			63000.0+float64(i),
			100+i,
			0.75,
			31500.0,
		)
	}
	return sb.String()
}

// Zip packs content as a single file named name.
func Zip(t testing.TB, name, content string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}
