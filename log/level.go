package log

import (
	"fmt"
	"strings"
)

// Level is a log level. It implements the pflag.Value interface.
type Level uint

const (
	// LevelDebug is the log level for debug messages.
	LevelDebug Level = iota
	// LevelInfo is the log level for informative messages.
	LevelInfo
	// LevelWarn is the log level for warning messages.
	LevelWarn
	// LevelError is the log level for error messages.
	LevelError
)

var levelNames = []string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// String returns the string representation of a Level.
func (l *Level) String() string {
	if int(*l) >= len(levelNames) {
		panic("logging: unsupported log level")
	}
	return levelNames[*l]
}

// Set sets the Level to the value specified by the provided string.
func (l *Level) Set(s string) error {
	for lvl, name := range levelNames {
		if strings.EqualFold(s, name) {
			*l = Level(lvl)
			return nil
		}
	}
	return fmt.Errorf("logging: invalid log level: '%s'", s)
}

// Type returns the list of supported Levels.
func (l *Level) Type() string {
	return "[" + strings.Join(levelNames, ",") + "]"
}
