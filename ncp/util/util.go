package util

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/guabee/ncpbuf/ncp/log"
	"github.com/pkg/errors"
)

const (
	CHILD_MODE_KEY        = "NCPBUF_RUN_MODE"
	CHILD_MODE_VALUE      = "child"
	CHILD_MODE_ENV_STRING = CHILD_MODE_KEY + "=" + CHILD_MODE_VALUE

	HAS_EXCEPTION_KEY    = "NCPBUF_HAS_EXCEPTION"
	HAS_EXCEPTION_VALUE  = "true"
	HAS_EXCEPTION_STRING = HAS_EXCEPTION_KEY + "=" + HAS_EXCEPTION_VALUE

	maxFailures   = 5
	failureWindow = 30 * time.Second
)

var ErrChildProcess = errors.New("already in child process")

func GoWithWaitGroup(wg *sync.WaitGroup, f func()) {
	wg.Add(1)
	go func() {
		f()
		wg.Done()
	}()
}

func IsChildProcess() bool {
	return os.Getenv(CHILD_MODE_KEY) == CHILD_MODE_VALUE
}

// HadException reports whether the previous child exited with an error.
func HadException() bool {
	return os.Getenv(HAS_EXCEPTION_KEY) == HAS_EXCEPTION_VALUE
}

// FailureFunc is called after every child that exited with an error, before
// it is restarted. Returning true stops the supervisor.
type FailureFunc func(err error) bool

// Supervisor keeps the daemon running as a child of the current process.
type Supervisor struct {
	args      []string
	onFailure FailureFunc
	run       func(env []string) error
	logger    *log.Entry
}

func NewSupervisor(onFailure FailureFunc) *Supervisor {
	s := &Supervisor{
		args:      os.Args,
		onFailure: onFailure,
		logger:    log.NewLoggerEntry("supervisor"),
	}
	s.run = s.runChild
	return s
}

func (s *Supervisor) runChild(env []string) error {
	cmd := exec.Command(s.args[0], s.args[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Run restarts the child until it exits cleanly, fails more than maxFailures
// times within failureWindow or onFailure asks to stop.
func (s *Supervisor) Run() error {
	if IsChildProcess() {
		return ErrChildProcess
	}

	restarts := 0
	failures := 0
	lastFailure := time.Now()
	for {
		env := append(os.Environ(), CHILD_MODE_ENV_STRING)
		if restarts > 0 {
			env = append(env, HAS_EXCEPTION_STRING)
		}
		s.logger.Infof("starting child, %d restarts so far", restarts)
		err := s.run(env)
		if err == nil {
			return nil
		}

		s.logger.Errorf("child exited: %s", err)
		if s.onFailure != nil && s.onFailure(err) {
			return errors.Wrap(err, "supervisor aborted")
		}
		if time.Since(lastFailure) > failureWindow {
			failures = 0
		}
		failures++
		lastFailure = time.Now()
		if failures > maxFailures {
			return errors.Wrapf(err, "child failed %d times in %s", failures, failureWindow)
		}
		restarts++
	}
}
