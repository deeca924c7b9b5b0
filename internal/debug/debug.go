package debug

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (layout, batches)
	LevelLive    = 2 // Live info (rotations started/finished)
	LevelVerbose = 3 // Verbose (resolved addresses, delays, state changes)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	mu     sync.RWMutex
	level  int
	logger *logrus.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (layout, batches)
// 2 = live info (rotations started/finished)
// 3 = verbose (addresses, delays, engine states)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	logger = nil
	if level > LevelOff {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.TraceLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006/01/02 15:04:05.000000",
		})
	}
}

// SetOutput redirects debug output (e.g. to a MultiWriter with the status broadcaster).
func SetOutput(w io.Writer) {
	mu.RLock()
	defer mu.RUnlock()
	if logger != nil {
		logger.SetOutput(w)
	}
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// entry returns a logrus entry tagged with the debug level name, or nil when
// the message must be dropped.
func entry(minLevel int, tag string) *logrus.Entry {
	mu.RLock()
	defer mu.RUnlock()
	if level < minLevel || logger == nil {
		return nil
	}
	return logger.WithField("app", "LaneGo").WithField("lvl", tag)
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if e := entry(LevelInfo, "info"); e != nil {
		e.Infof(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if e := entry(LevelInfo, "info"); e != nil {
		e.Info("═══════════════════════════════════════")
		e.Infof("  %s", title)
		e.Info("═══════════════════════════════════════")
	}
}

// Batch prints the composition of a rotation batch (level 1).
func Batch(size, capacity int) {
	if e := entry(LevelInfo, "info"); e != nil {
		e.WithFields(logrus.Fields{"size": size, "capacity": capacity}).Info("dispatching rotation batch")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if e := entry(LevelLive, "live"); e != nil {
		e.Infof(format, args...)
	}
}

// Move prints a motor movement (level 2).
func Move(channel, steps int, direction string) {
	if e := entry(LevelLive, "live"); e != nil {
		e.WithFields(logrus.Fields{
			"channel":   channel,
			"steps":     steps,
			"direction": direction,
		}).Info("motor rotation")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if e := entry(LevelVerbose, "verbose"); e != nil {
		e.Debugf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if e := entry(LevelVerbose, "verbose"); e != nil {
		e.Debugf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if e := entry(LevelVerbose, "verbose"); e != nil {
		e.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		e.Debugf("  %s", name)
		e.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if e := entry(LevelVerbose, "verbose"); e != nil {
		e.Debugf("Step %d: %s", num, description)
	}
}

// Value prints a named value (level 1).
func Value(name string, value interface{}) {
	if e := entry(LevelInfo, "info"); e != nil {
		e.Infof("  %s = %v", name, value)
	}
}

// State prints an engine state transition (level 3).
func State(channel int, from, to string) {
	if e := entry(LevelVerbose, "verbose"); e != nil {
		e.WithFields(logrus.Fields{"channel": channel, "from": from, "to": to}).Debug("engine state")
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if e := entry(LevelTrace, "trace"); e != nil {
		e.Tracef(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if e := entry(LevelTrace, "gpio"); e != nil {
		e.WithFields(logrus.Fields{"pin": pin, "value": value}).Trace(operation)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if e := entry(LevelInfo, "error"); e != nil {
		e.WithError(err).Error("operation failed")
	}
}
