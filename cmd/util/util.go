package util

import (
	"fmt"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/errors"
)

// Mocked out for unit testing.
var exit = os.Exit

// HandleFatalError prints the error in a user-friendly format, and exits.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", errors.GetPrintableMessage(err))
	exit(1)
}

// HandlePanic logs panics before exiting. It should be deferred at the
// start of main.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Error("Unexpected panic")
		fmt.Fprintf(os.Stderr, "ERROR: unexpected panic: %v\n", r)
		exit(2)
	}
}
