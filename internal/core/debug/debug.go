package debug

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/checkmate-server/lobby/internal/core"
)

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// StartUtilities spins off the services associated with debug mode.
func StartUtilities(logger *logrus.Logger, cfg *core.Config) {
	if !cfg.Debugging.Enabled {
		return
	}
	startPprofServer(logger, cfg.Debugging.PprofPort)
}

// This function starts the default pprof HTTP server that can be accessed via localhost
// to get runtime information about the server. See https://golang.org/pkg/net/http/pprof/
func startPprofServer(logger *logrus.Logger, port int) {
	listenerAddr := fmt.Sprintf("localhost:%d", port)
	logger.Infof("starting pprof server on %s", listenerAddr)

	go func() {
		if err := http.ListenAndServe(listenerAddr, nil); err != nil {
			logger.Infof("error starting pprof server: %s", err)
		}
	}()
}

// DumpFrame logs an inbound frame at debug level. source identifies the sender.
func DumpFrame(logger *logrus.Logger, source string, payload []byte) {
	if !logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	logger.Debugf("[PACKET] from %s (%d bytes)\n%s", source, len(payload), dumper.Sdump(payload))
}
