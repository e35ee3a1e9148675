package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

type Entry = log.Entry

type Logger struct {
	log.Logger
	Name           string `json:"name"`
	Level          Level  `json:"level"`
	isDefaultLevel bool
}

type Level string

const (
	PanicLevel Level = "panic"
	FatalLevel Level = "fatal"
	ErrorLevel Level = "error"
	WarnLevel  Level = "warn"
	InfoLevel  Level = "info"
	// DebugLevel is what most modules are switched to when listed in the
	// debugModules config option.
	DebugLevel Level = "debug"
	TraceLevel Level = "trace"
)

type registry struct {
	mu       sync.Mutex
	out      io.Writer
	level    Level
	loggers  map[string]*Logger
	patterns map[string]Level // module name or "prefix*" or "*"/"all"
}

var loggers = &registry{
	out:      os.Stdout,
	level:    InfoLevel,
	loggers:  make(map[string]*Logger),
	patterns: make(map[string]Level),
}

func toLogrusLevel(level Level) log.Level {
	l, err := log.ParseLevel(string(level))
	if err != nil {
		return log.DebugLevel
	}
	return l
}

func IsValidLevel(level Level) bool {
	switch level {
	case PanicLevel, FatalLevel, ErrorLevel, WarnLevel, InfoLevel, DebugLevel, TraceLevel:
		return true
	default:
		return false
	}
}

func matchPattern(pattern, name string) bool {
	if pattern == "*" || pattern == "all" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	}
	return pattern == name
}

// SetDefaultLevel changes the level of every logger that was not given an
// explicit level.
func SetDefaultLevel(level Level) {
	if !IsValidLevel(level) {
		return
	}

	loggers.mu.Lock()
	defer loggers.mu.Unlock()
	loggers.level = level
	for _, logger := range loggers.loggers {
		if logger.isDefaultLevel {
			logger.setLevel(level, true)
		}
	}
}

// SetLogLevel sets the level of the named module. name may be "*"/"all" or
// end with "*" to match a module prefix. The setting also applies to modules
// created later.
func SetLogLevel(name string, level Level) {
	if !IsValidLevel(level) {
		return
	}

	loggers.mu.Lock()
	defer loggers.mu.Unlock()
	loggers.patterns[name] = level
	for _, logger := range loggers.loggers {
		if matchPattern(name, logger.Name) {
			logger.setLevel(level, false)
		}
	}
}

func SetLogOut(out io.Writer) {
	loggers.mu.Lock()
	defer loggers.mu.Unlock()
	loggers.out = out
	for _, logger := range loggers.loggers {
		logger.SetOutput(out)
	}
}

func GetLoggersInfo() []string {
	loggers.mu.Lock()
	defer loggers.mu.Unlock()
	info := make([]string, 0, len(loggers.loggers))
	for _, logger := range loggers.loggers {
		info = append(info, logger.String())
	}
	sort.Strings(info)
	return info
}

// NewLoggerEntry returns the entry of the module logger, creating the logger
// on first use.
func NewLoggerEntry(moduleName string) *Entry {
	loggers.mu.Lock()
	defer loggers.mu.Unlock()

	logger, found := loggers.loggers[moduleName]
	if !found {
		logger = &Logger{Name: moduleName}
		logger.Out = loggers.out
		logger.Formatter = new(log.TextFormatter)
		logger.Hooks = make(log.LevelHooks)
		logger.ExitFunc = os.Exit
		logger.setLevel(loggers.level, true)
		for pattern, level := range loggers.patterns {
			if matchPattern(pattern, moduleName) {
				logger.setLevel(level, false)
				break
			}
		}
		loggers.loggers[moduleName] = logger
	}

	return logger.WithField("module", moduleName)
}

func (logger *Logger) setLevel(level Level, isDefault bool) {
	logger.SetLevel(toLogrusLevel(level))
	logger.Level = level
	logger.isDefaultLevel = isDefault
}

func (logger *Logger) String() string {
	return fmt.Sprintf("%s: %s", logger.Name, logger.Level)
}
