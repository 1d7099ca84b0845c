package log

import (
	"bytes"
	"fmt"
	"io"
	golog "log"
	"math"
	"os"
	"time"
)

var DefaultLogger *golog.Logger
var defaultFilter *logFilter

type Level string

const (
	LDebug = Level("debug")
	LInfo  = Level("info")
	LWarn  = Level("warn")
	LError = Level("error")
	LFatal = Level("fatal")
)

func init() {
	defaultFilter = &logFilter{
		start:    time.Now(),
		writer:   os.Stderr,
		levels:   []Level{LDebug, LInfo, LWarn, LError, LFatal},
		minLevel: LInfo,
	}
	defaultFilter.init()
	DefaultLogger = golog.New(defaultFilter, "", 0)
}

type logFilter struct {
	start     time.Time
	writer    io.Writer
	badLevels map[Level]struct{}
	minLevel  Level
	levels    []Level
}

func (f *logFilter) SetMinLevel(lvl Level) {
	f.minLevel = lvl
	f.init()
}

func (f *logFilter) init() {
	badLevels := make(map[Level]struct{})
	for _, level := range f.levels {
		if level == f.minLevel {
			break
		}
		badLevels[level] = struct{}{}
	}
	f.badLevels = badLevels
}

func (f *logFilter) check(line []byte) bool {
	var level Level
	x := bytes.IndexByte(line, '[')
	if x >= 0 {
		y := bytes.IndexByte(line[x:], ']')
		if y >= 0 {
			level = Level(line[x+1 : x+y])
		}
	}
	_, ok := f.badLevels[level]
	return !ok
}

func (f *logFilter) Write(p []byte) (n int, err error) {
	if !f.check(p) {
		return 0, nil
	}
	// The Go log package always guarantees that we only get a single line.
	b := bytes.Buffer{}
	now := time.Now()

	d := now.Sub(f.start)
	fmt.Fprintf(&b, "[%s] %d:%02d:%02d ",
		now.Format(time.RFC3339),
		int(d.Hours()),
		int(math.Mod(d.Minutes(), 60)),
		int(math.Mod(d.Seconds(), 60)),
	)
	b.Write(p)

	return f.writer.Write(b.Bytes())
}

func SetMinLevel(lvl Level) {
	defaultFilter.SetMinLevel(lvl)
}

// SetQuiet raises the minimum level to warnings.
func SetQuiet(quiet bool) {
	if quiet {
		defaultFilter.SetMinLevel(LWarn)
	} else {
		defaultFilter.SetMinLevel(LInfo)
	}
}

// A Logger tags each line with a level and component name so the default
// filter can drop lines below the configured minimum.
type Logger struct {
	component string
}

func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) prefix(lvl Level) string {
	if l.component == "" {
		return "[" + string(lvl) + "]"
	}
	return "[" + string(lvl) + "] [" + l.component + "]"
}

func (l *Logger) Print(v ...interface{}) {
	DefaultLogger.Println(append([]interface{}{l.prefix(LInfo)}, v...)...)
}

func (l *Logger) Printf(format string, v ...interface{}) {
	DefaultLogger.Printf(l.prefix(LInfo)+" "+format, v...)
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	DefaultLogger.Printf(l.prefix(LDebug)+" "+format, v...)
}

func (l *Logger) Warn(v ...interface{}) {
	DefaultLogger.Println(append([]interface{}{l.prefix(LWarn)}, v...)...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	DefaultLogger.Printf(l.prefix(LWarn)+" "+format, v...)
}

func (l *Logger) Error(v ...interface{}) {
	DefaultLogger.Println(append([]interface{}{l.prefix(LError)}, v...)...)
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	DefaultLogger.Printf(l.prefix(LError)+" "+format, v...)
}

func (l *Logger) Fatal(v ...interface{}) {
	DefaultLogger.Fatal(append([]interface{}{l.prefix(LFatal)}, v...)...)
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	DefaultLogger.Fatalf(l.prefix(LFatal)+" "+format, v...)
}

// Step logs the start of a named step and returns a func that logs its
// completion with the elapsed time.
func (l *Logger) Step(name string) func() {
	start := time.Now()
	l.Print("Starting:", name)
	return func() {
		l.Printf("Finished: %s in %s", name, time.Since(start))
	}
}
