package acquire

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/LauH1987/witrn-pd-sniffer/internal/eventbus"
	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
	"github.com/LauH1987/witrn-pd-sniffer/internal/wire"
)

// JoinTimeout bounds how long Stop waits for the worker to exit on its
// own before killing it.
const JoinTimeout = 2 * time.Second

// Supervisor owns the acquisition worker process. It launches the
// worker binary, republishes its stdout frames onto the bounded
// channels, forwards pause/resume over stdin, and guarantees the
// process is reaped on stop.
type Supervisor struct {
	log        zerolog.Logger
	workerPath string
	devicePath string

	telemetry *eventbus.Chan[types.TelemetrySample]
	protocol  *eventbus.Chan[wire.Record]

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	enc     *wire.Encoder
	done    chan struct{}
	running bool
}

func NewSupervisor(log zerolog.Logger, workerPath, devicePath string,
	telemetry *eventbus.Chan[types.TelemetrySample], protocol *eventbus.Chan[wire.Record]) *Supervisor {
	return &Supervisor{
		log:        log.With().Str("component", "supervisor").Logger(),
		workerPath: workerPath,
		devicePath: devicePath,
		telemetry:  telemetry,
		protocol:   protocol,
	}
}

// Start launches the worker process. An exec failure is returned
// directly; a device-level connect failure arrives later as a sentinel
// on the protocol channel.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("worker already running")
	}

	cmd := exec.Command(s.workerPath, "--device", s.devicePath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("worker stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	s.log.Info().Int("pid", cmd.Process.Pid).Str("device", s.devicePath).Msg("worker started")

	s.cmd = cmd
	s.stdin = stdin
	s.enc = wire.NewEncoder(stdin)
	s.done = make(chan struct{})
	s.running = true

	go s.pipeStderr(stderr)
	go s.pump(stdout)
	return nil
}

// pump republishes worker frames onto the bounded channels until the
// pipe closes, then reaps the process.
func (s *Supervisor) pump(stdout io.Reader) {
	defer close(s.done)

	dec := wire.NewDecoder(stdout)
	for {
		var rec wire.Record
		if err := dec.Decode(&rec); err != nil {
			if err != io.EOF {
				s.log.Warn().Err(err).Msg("worker stream ended")
			}
			break
		}

		switch rec.Kind {
		case wire.KindTelemetry:
			if rec.Telemetry != nil {
				s.telemetry.TryPublish(*rec.Telemetry)
			}
		default:
			s.protocol.TryPublish(rec)
		}
	}

	if err := s.cmd.Wait(); err != nil {
		s.log.Debug().Err(err).Msg("worker exited")
	}
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Supervisor) pipeStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.log.Debug().Str("stream", "worker-stderr").Msg(sc.Text())
	}
}

// Running reports whether the worker process is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pause asks the worker to suppress protocol records.
func (s *Supervisor) Pause() error { return s.send(wire.OpPause) }

// Resume lifts a pause.
func (s *Supervisor) Resume() error { return s.send(wire.OpResume) }

func (s *Supervisor) send(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return fmt.Errorf("worker not running")
	}
	return s.enc.Encode(&wire.Command{Op: op})
}

// Stop shuts the worker down: cooperative stop first, then a bounded
// wait, then a kill. Returns once the process is gone.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cmd := s.cmd
	done := s.done
	if err := s.enc.Encode(&wire.Command{Op: wire.OpStop}); err != nil {
		s.log.Debug().Err(err).Msg("stop command not delivered")
	}
	s.stdin.Close()
	s.mu.Unlock()

	select {
	case <-done:
		s.log.Info().Msg("worker stopped")
	case <-time.After(JoinTimeout):
		s.log.Warn().Msg("worker did not stop in time, killing")
		if err := cmd.Process.Kill(); err != nil {
			s.log.Error().Err(err).Msg("worker kill failed")
		}
		<-done
	}
}
