package log

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kjk/flatkv/siser"
	"github.com/kjk/flatkv/u"

	"github.com/toon-format/toon-go"
)

var (
	log       *WriteDaily
	errorsLog *WriteDaily
	eventsLog *WriteDaily

	// if true, Verbosef() will log messages
	Verbose bool

	// console destinations, swapped in tests
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// WriteDaily appends to a file named after the current day (YYYY-MM-DD.txt)
// inside Dir, switching to a new file when the day changes.
// All methods are safe to call on nil receiver.
type WriteDaily struct {
	Dir         string
	currentDate int // YYYYMMDD format
	file        *os.File
	mu          sync.Mutex
}

func NewWriteDaily(dir string) *WriteDaily {
	return &WriteDaily{
		Dir: dir,
	}
}

func (w *WriteDaily) WriteString(s string) error {
	return w.Write([]byte(s))
}

// dayFromTime converts a time.Time to YYYYMMDD integer format
func dayFromTime(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// PathForDay returns path of the log file for day t
func (w *WriteDaily) PathForDay(t time.Time) string {
	return filepath.Join(w.Dir, t.UTC().Format("2006-01-02")+".txt")
}

func (w *WriteDaily) writer() (io.Writer, error) {
	now := time.Now().UTC()
	today := dayFromTime(now)

	if w.file != nil && w.currentDate != today {
		if err := w.close(); err != nil {
			return nil, err
		}
	}

	if w.file == nil {
		if err := os.MkdirAll(w.Dir, 0755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(w.PathForDay(now), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		w.file = f
		w.currentDate = today
	}
	return w.file, nil
}

func (w *WriteDaily) Write(d []byte) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	wr, err := w.writer()
	if err != nil {
		return err
	}
	_, err = wr.Write(d)
	return err
}

func (w *WriteDaily) close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.currentDate = 0
	return err
}

func (w *WriteDaily) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.close()
}

func (w *WriteDaily) Sync() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Sync()
	}
	return nil
}

type Config struct {
	// directory where log files are stored
	// each log type (regular, errors, events) has its own subdirectory
	// if empty, only console logging happens
	Dir string
	// called for every Logf() call
	OnLog func(s string)
}

var onLog func(s string)

// Init initializes the logging system
func Init(config *Config) {
	Close()
	onLog = config.OnLog
	dir := config.Dir
	if dir == "" {
		return
	}
	// files are created lazily so if nothing is logged
	// there are no empty files
	log = NewWriteDaily(filepath.Join(dir, "log"))
	errorsLog = NewWriteDaily(filepath.Join(dir, "errors"))
	eventsLog = NewWriteDaily(filepath.Join(dir, "events"))
}

// EventsDir returns directory of events log or "" if not logging to files
func EventsDir() string {
	if eventsLog == nil {
		return ""
	}
	return eventsLog.Dir
}

// CloseWriteDaily closes the WriteDaily and sets its pointer to nil
func CloseWriteDaily(wd **WriteDaily) {
	if *wd == nil {
		return
	}
	_ = (*wd).Sync()
	_ = (*wd).Close()
	*wd = nil
}

func Close() {
	CloseWriteDaily(&log)
	CloseWriteDaily(&errorsLog)
	CloseWriteDaily(&eventsLog)
}

func sprintf(s string, args []any) string {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	return s
}

func Logf(s string, args ...any) {
	s = sprintf(s, args)
	fmt.Fprint(Stdout, s)
	_ = log.WriteString(s)
	if onLog != nil {
		onLog(s)
	}
}

func Verbosef(format string, args ...any) {
	if !Verbose {
		return
	}
	Logf(format, args...)
}

// Warnf logs a problem that was handled but shouldn't go unnoticed.
// Goes to stderr, regular log and errors log.
func Warnf(s string, args ...any) {
	s = "warning: " + sprintf(s, args)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	fmt.Fprint(Stderr, s)
	_ = log.WriteString(s)
	_ = errorsLog.WriteString(s)
}

func GetCallstackFrames(skip int) []string {
	var callers [32]uintptr
	n := runtime.Callers(skip+1, callers[:])
	frames := runtime.CallersFrames(callers[:n])
	var cs []string
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		cs = append(cs, frame.File+":"+strconv.Itoa(frame.Line))
	}
	return cs
}

func GetCallstack(skip int) string {
	frames := GetCallstackFrames(skip + 1)
	return strings.Join(frames, "\n")
}

// Errorf logs an error message along with the callstack
func Errorf(s string, args ...any) {
	s = sprintf(s, args)
	cs := GetCallstack(2)
	msg := fmt.Sprintf("%s\n%s\n", strings.TrimSuffix(s, "\n"), cs)
	fmt.Fprint(Stderr, msg)
	_ = log.WriteString(msg)
	_ = errorsLog.WriteString(msg)
}

// if err != nil, log and return true
// IfErrf(err) => logs err.Error()
// IfErrf(err, "error is: %v", err) => logs message formatted
func IfErrf(err error, a ...any) bool {
	if err == nil {
		return false
	}
	if len(a) == 0 {
		Errorf("%s", err.Error())
		return true
	}
	s, ok := a[0].(string)
	if !ok {
		s = fmt.Sprintf("%s", a[0])
	}
	Errorf(s, a[1:]...)
	return true
}

// simpleTypeToStr converts simple types to string
// panics if v is of complex type
func simpleTypeToStr(v any) string {
	rt := reflect.TypeOf(v)
	kind := rt.Kind()
	switch kind {
	case reflect.Array, reflect.Slice, reflect.Struct, reflect.Map, reflect.Chan, reflect.Interface, reflect.Pointer:
		panic(fmt.Sprintf("toStr: value is of kind %v", kind))
	case reflect.String:
		return v.(string)
	}
	return fmt.Sprintf("%v", v)
}

// MarshalEvent formats key/value pairs in toon format and frames
// them as a single siser record
func MarshalEvent(name string, t time.Time, vals ...any) []byte {
	n := len(vals)
	u.PanicIf(n%2 != 0, "Event(%s): odd number of key/values", name)
	var d []byte
	if n > 0 {
		m := map[string]any{}
		for i := 0; i < n; i += 2 {
			k := simpleTypeToStr(vals[i])
			v := vals[i+1]
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			m[k] = v
		}
		d, _ = toon.Marshal(m)
	}
	return siser.MarshalLine(name, t, d, nil)
}

// Event records a named event with key/value pairs in the events log
func Event(name string, vals ...any) {
	if eventsLog == nil {
		return
	}
	d := MarshalEvent(name, time.Now().UTC(), vals...)
	_ = eventsLog.Write(d)
}

type EventRecord struct {
	Name      string
	Timestamp time.Time
	// toon-formatted key/values
	Data string
}

// ReadEvents reads events written by Event from a daily events file
func ReadEvents(path string) ([]EventRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer u.CloseNoError(f)
	var res []EventRecord
	r := siser.NewReader(bufio.NewReader(f))
	for r.ReadNext() {
		res = append(res, EventRecord{
			Name:      r.Name,
			Timestamp: r.Timestamp,
			Data:      string(r.Data),
		})
	}
	if err = r.Err(); err != nil {
		return res, fmt.Errorf("reading events from '%s': %w", path, err)
	}
	return res, nil
}

// ListEventFiles returns events log files in dir, oldest first
func ListEventFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var res []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		res = append(res, filepath.Join(dir, e.Name()))
	}
	// YYYY-MM-DD names sort chronologically
	sort.Strings(res)
	return res, nil
}
