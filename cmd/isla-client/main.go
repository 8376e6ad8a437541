// isla-client - symbolic execution worker serving the framed socket
// protocol. A driver process listens on a unix socket; this worker
// connects to it, then answers execute requests with trace streams
// until told to stop.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/tliron/commonlog"

	"github.com/thud/isla/executor"
	"github.com/thud/isla/ir"
	"github.com/thud/isla/isa"
	"github.com/thud/isla/server"
	"github.com/thud/isla/wire"

	_ "github.com/tliron/commonlog/simple"
)

// Exit statuses: protocol-level failures and I/O failures are
// distinguishable to whatever launched the worker.
const (
	exitOK       = 0
	exitProtocol = 1
	exitIO       = 2
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "unknown"

var log = commonlog.GetLogger("isla")

func main() {
	code := islaMain()
	// Solver teardown runs on every exit path, not just the clean one.
	executor.Finalize()
	os.Exit(code)
}

func islaMain() int {
	archPath := flag.String("arch", "", "architecture snapshot to load")
	configPath := flag.String("config", "", "ISA configuration file")
	socketPath := flag.String("socket", "", "connect to server at location")
	numThreads := flag.Int("threads", runtime.GOMAXPROCS(0), "number of exploration workers per request")
	verbose := flag.Bool("v", false, "verbose logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: isla-client -arch <file> -config <file> -socket <path> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Connects to a driver listening on the unix socket and executes opcodes on request.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	if *archPath == "" || *configPath == "" || *socketPath == "" {
		flag.Usage()
		return exitProtocol
	}

	arch, err := ir.LoadArchitecture(*archPath)
	if err != nil {
		log.Errorf("%v", err)
		return exitProtocol
	}
	initialized, err := ir.InitializeArchitecture(arch)
	if err != nil {
		log.Errorf("%v", err)
		return exitProtocol
	}
	isaConfig, err := isa.LoadConfig(*configPath, initialized.Shared)
	if err != nil {
		log.Errorf("%v", err)
		return exitProtocol
	}

	stream, err := net.Dial("unix", *socketPath)
	if err != nil {
		log.Errorf("could not connect to socket %s: %v", *socketPath, err)
		return exitProtocol
	}
	defer stream.Close()

	sess := server.New(stream, *numThreads, initialized, isaConfig, "dev-"+version)
	err = sess.Interact()
	switch {
	case err == nil:
		return exitOK
	case isCommandError(err):
		// The peer always gets a terminal marker: one Error response
		// closes every stream that did not end in EndTraces.
		log.Errorf("%v", err)
		if werr := wire.WriteResponse(stream, wire.ErrorResponse()); werr != nil {
			log.Errorf("error on signalling error: %v", werr)
			return exitIO
		}
		return exitProtocol
	default:
		log.Errorf("%v", err)
		return exitIO
	}
}

func isCommandError(err error) bool {
	var cmdErr *server.CommandError
	return errors.As(err, &cmdErr)
}
