package database

import (
	"fmt"
	"io"
	"os"
)

// Logger receives the applied statements. It is separate from slog because its output is
// SQL meant for the user, not diagnostics.
type Logger interface {
	Print(v ...any)
	Printf(format string, v ...any)
	Println(v ...any)
}

type WriterLogger struct {
	W io.Writer
}

func (l WriterLogger) Print(v ...any) {
	fmt.Fprint(l.W, v...)
}

func (l WriterLogger) Printf(format string, v ...any) {
	fmt.Fprintf(l.W, format, v...)
}

func (l WriterLogger) Println(v ...any) {
	fmt.Fprintln(l.W, v...)
}

func StdoutLogger() Logger {
	return WriterLogger{W: os.Stdout}
}

type NullLogger struct{}

func (n NullLogger) Print(v ...any)                 {}
func (n NullLogger) Printf(format string, v ...any) {}
func (n NullLogger) Println(v ...any)               {}
