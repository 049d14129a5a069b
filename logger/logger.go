// Package logger provides the colored slog handler used by the gateway.
package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type contextKey struct{}

// Options controls how records are rendered.
type Options struct {
	// Level is the minimum level written. Nil means slog.LevelInfo.
	Level slog.Leveler

	TimeFormat string

	// Source adds file:line of the call site.
	Source bool

	// NoColor strips ANSI sequences, for log files and non-terminals.
	NoColor bool
}

// Handler writes one colored line per record:
//
//	2006-01-02 15:04:05 42 INFO  | message key=value
type Handler struct {
	opts   Options
	attrs  []slog.Attr
	groups []string

	mu  *sync.Mutex
	out io.Writer
}

func NewHandler(out io.Writer, opts Options) *Handler {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = time.DateTime
	}
	return &Handler{opts: opts, mu: &sync.Mutex{}, out: out}
}

// New returns a logger writing to out at the named level.
func New(out io.Writer, level string, noColor bool) *slog.Logger {
	return slog.New(NewHandler(out, Options{Level: ParseLevel(level), NoColor: noColor}))
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

var (
	faint   = color.New(color.Faint)
	magenta = color.New(color.FgMagenta)
	cyan    = color.New(color.FgCyan)
	red     = color.New(color.FgRed)
	prefix  = color.HiWhiteString("| ")

	levelBadges = map[slog.Level]*color.Color{
		slog.LevelDebug: color.New(color.BgCyan, color.FgHiWhite),
		slog.LevelInfo:  color.New(color.BgGreen, color.FgHiWhite),
		slog.LevelWarn:  color.New(color.BgYellow, color.FgHiWhite),
		slog.LevelError: color.New(color.BgRed, color.FgHiWhite),
	}
)

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	if !r.Time.IsZero() {
		buf.WriteString(faint.Sprint(r.Time.Format(h.opts.TimeFormat)))
		buf.WriteByte(' ')
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		buf.WriteString(magenta.Sprintf("%d ", id))
	}

	buf.WriteString(levelBadge(r.Level))
	buf.WriteByte(' ')

	if h.opts.Source && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		fmt.Fprintf(buf, "%s:%d ", filepath.Base(f.File), f.Line)
	}

	buf.WriteString(prefix)
	buf.WriteString(r.Message)

	group := ""
	if len(h.groups) > 0 {
		group = strings.Join(h.groups, ".") + "."
	}
	writeAttr := func(key string, a slog.Attr) {
		paint := cyan
		if strings.Contains(a.Key, "err") {
			paint = red
		}
		buf.WriteByte(' ')
		buf.WriteString(paint.Sprintf("%s=", key))
		buf.WriteString(a.Value.String())
	}
	for _, a := range h.attrs {
		writeAttr(a.Key, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(group+a.Key, a)
		return true
	})
	buf.WriteByte('\n')

	out := buf.Bytes()
	if h.opts.NoColor {
		out = ansi.ReplaceAll(out, nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(out)
	return err
}

func levelBadge(level slog.Level) string {
	name := fmt.Sprintf("%-5s", level.String())
	if c, ok := levelBadges[level]; ok {
		return c.Sprint(name)
	}
	return name
}

// WithAttrs qualifies attrs with the groups open at the time of the call.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	group := ""
	if len(h.groups) > 0 {
		group = strings.Join(h.groups, ".") + "."
	}
	h2 := *h
	h2.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, slog.Attr{Key: group + a.Key, Value: a.Value})
	}
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(append([]string{}, h.groups...), name)
	return &h2
}

var bufPool = sync.Pool{
	New: func() any { return &bytes.Buffer{} },
}

var ansi = regexp.MustCompile("[\u001B\u009B][[\\]()#;?]*(?:(?:(?:[a-zA-Z\\d]*(?:;[a-zA-Z\\d]*)*)?\u0007)|(?:(?:\\d{1,4}(?:;\\d{0,4})*)?[\\dA-PRZcf-ntqry=><~]))")

func ContextWithRequestID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func RequestIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(contextKey{}).(int64)
	return id, ok
}
