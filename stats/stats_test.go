package stats_test

import (
	"strings"
	"testing"

	"github.com/smartcard-connector/format-code/stats"
	"github.com/stretchr/testify/require"
)

func TestPrint(t *testing.T) {
	as := require.New(t)

	statz := stats.New()
	statz.Add(stats.Discovered, 3)
	statz.Add(stats.Formatted, 2)
	statz.Add(stats.Changed, 1)
	as.Equal(int32(1), statz.Add(stats.Failed, 1))

	var sb strings.Builder
	statz.Print(&sb)

	as.Contains(sb.String(), "discovered 3 files")
	as.Contains(sb.String(), "formatted 2 files (1 changed)")
	as.Contains(sb.String(), "failed 1 files")
	as.Contains(sb.String(), "done in")
}
