package testlog

import (
	"fmt"
	"testing"

	"github.com/danmuck/qrgate/internal/logging"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("test start")
}

// Logf records a narrative line for the running test.
func Logf(format string, args ...any) {
	log.Debug().Msg(fmt.Sprintf(format, args...))
}
