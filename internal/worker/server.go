package worker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/gantry-run/gantry/internal/protocol"
)

// Server is the worker's RPC dispatcher: it owns the framer, maps
// method names to behaviors, and guarantees exactly one correlated
// response per request line.
type Server struct {
	framer *protocol.Framer
	runner *Runner
	log    *logrus.Entry

	// exec serializes invocations; a worker processes at most one at
	// a time.
	exec sync.Mutex

	// exit is swappable so shutdown is testable.
	exit func(code int)
}

// NewServer wires a dispatcher over the given streams. in/out are the
// frame streams (stdin/stdout in production); diagnostics never touch
// them.
func NewServer(in io.Reader, out io.Writer, runner *Runner, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		framer: protocol.NewFramer(in, out),
		runner: runner,
		log:    log,
		exit:   os.Exit,
	}
}

// Run emits the ready notification, then serves request lines until
// the inbound stream closes. A malformed line produces an error
// response and the loop keeps going; only stream errors end it.
func (s *Server) Run() error {
	if err := s.framer.WriteReady(); err != nil {
		return fmt.Errorf("announce ready: %w", err)
	}
	s.log.Debug("worker ready, entering read loop")

	for {
		line, err := s.framer.ReadLine()
		if err == io.EOF {
			s.log.Debug("input closed, worker exiting")
			return nil
		}
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			// The oversized line is already consumed; answer it and
			// keep serving.
			s.log.Warn("dropping oversized request line")
			if werr := s.framer.WriteResponse(protocol.NewErrorResponse(
				nil, protocol.CodeParseError, err.Error())); werr != nil {
				return werr
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("read request line: %w", err)
		}
		if err := s.serveLine(line); err != nil {
			return err
		}
	}
}

// serveLine handles one request line. The returned error is a write
// failure on the response stream; everything else is answered inline.
func (s *Server) serveLine(line []byte) error {
	req, err := protocol.ParseRequest(line)
	if err != nil {
		s.log.WithError(err).Warn("malformed request line")
		return s.framer.WriteResponse(
			protocol.NewErrorResponse(nil, protocol.CodeParseError, err.Error()))
	}

	switch req.Method {
	case protocol.MethodExecute:
		return s.serveExecute(req)

	case protocol.MethodPing:
		return s.framer.WriteResponse(
			protocol.NewResultResponse(req.ID, protocol.PingResult{Status: "ok"}))

	case protocol.MethodShutdown:
		// Immediate exit, no response frame, no draining.
		s.log.Debug("shutdown requested")
		s.exit(0)
		return nil

	default:
		return s.framer.WriteResponse(protocol.NewErrorResponse(
			req.ID, protocol.CodeMethodNotFound, fmt.Sprintf("method not found: %q", req.Method)))
	}
}

func (s *Server) serveExecute(req *protocol.Request) error {
	s.exec.Lock()
	defer s.exec.Unlock()

	params, err := req.ExecuteParams()
	if err != nil {
		return s.framer.WriteResponse(protocol.NewErrorResponse(
			req.ID, protocol.CodeInternalError, fmt.Sprintf("decode execute params: %v", err)))
	}

	result := s.runner.Execute(params)
	return s.framer.WriteResponse(protocol.NewResultResponse(req.ID, result))
}
