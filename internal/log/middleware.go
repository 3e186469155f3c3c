package log

import (
	"context"
	"log/slog"
	"net/http"
)

type loggerKey struct{}

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or one wrapping the slog
// default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	def := slog.Default()
	return &Logger{Logger: def, base: def}
}

// Middleware stores logger in each request context, tagged with the id
// requestID reports for the request. requestID may be nil.
func Middleware(logger *Logger, requestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logger
			if requestID != nil {
				if id := requestID(r); id != "" {
					l = l.With(FieldRequestID, id)
				}
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), l)))
		})
	}
}

// Events logs the budget changes worth an audit line.
type Events struct {
	logger *Logger
}

func NewEvents(logger *Logger) *Events {
	return &Events{logger: logger}
}

// Imported logs the outcome of one imported file.
func (e *Events) Imported(ctx context.Context, source string, added, duplicates, skipped int) {
	f := NewFields().WithImport(source, added, duplicates, skipped).WithOperation(OpImport)
	e.logger.InfoContext(ctx, "Transactions imported", f.ToSlice()...)
}

// TransactionChanged logs a recategorized or deleted transaction.
func (e *Events) TransactionChanged(ctx context.Context, op, month, txID, category string) {
	f := NewFields().WithTransaction(month, txID, category).WithOperation(op)
	e.logger.InfoContext(ctx, "Transaction updated", f.ToSlice()...)
}

// Failed logs err at error level. fields may be nil.
func (e *Events) Failed(ctx context.Context, msg string, err error, op string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	e.logger.ErrorContext(ctx, msg, fields.WithError(err).WithOperation(op).ToSlice()...)
}
