package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// QueryLoggerConfig tunes how gorm statements reach the zap logger.
type QueryLoggerConfig struct {
	Level gormlogger.LogLevel
	Slow  time.Duration
	// QuietNotFound drops ErrRecordNotFound; services translate it into
	// subscription_not_found and friends themselves.
	QuietNotFound bool
}

func DefaultQueryLoggerConfig() QueryLoggerConfig {
	return QueryLoggerConfig{
		Level:         gormlogger.Warn,
		Slow:          250 * time.Millisecond,
		QuietNotFound: true,
	}
}

// QueryLogger implements gormlogger.Interface on top of FromContext, so SQL
// lines carry the same request_id and user_id as the access log.
type QueryLogger struct {
	cfg QueryLoggerConfig
}

func NewQueryLogger(cfg QueryLoggerConfig) *QueryLogger {
	return &QueryLogger{cfg: cfg}
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	if err != nil && !(l.cfg.QuietNotFound && errors.Is(err, gormlogger.ErrRecordNotFound)) {
		if l.cfg.Level >= gormlogger.Error {
			l.statement(ctx, zapcore.ErrorLevel, fc, elapsed, err)
		}
		return
	}
	if l.cfg.Slow > 0 && elapsed > l.cfg.Slow {
		if l.cfg.Level >= gormlogger.Warn {
			l.statement(ctx, zapcore.WarnLevel, fc, elapsed, nil)
		}
		return
	}
	if l.cfg.Level >= gormlogger.Info {
		l.statement(ctx, zapcore.DebugLevel, fc, elapsed, nil)
	}
}

// ParamsFilter keeps bound values (user ids, amounts) out of the log.
func (l *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *QueryLogger) message(ctx context.Context, floor gormlogger.LogLevel, lvl zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < floor {
		return
	}
	fields := []zap.Field{zap.String("component", "db")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	if ce := FromContext(ctx).Check(lvl, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *QueryLogger) statement(ctx context.Context, lvl zapcore.Level, fc func() (string, int64), elapsed time.Duration, err error) {
	sql, rows := fc()
	verb, table := describeStatement(sql)

	fields := []zap.Field{
		zap.String("component", "db"),
		zap.String("db.operation", verb),
		zap.String("db.table", table),
		zap.String("db.statement", strings.TrimSpace(sql)),
		zap.Float64("elapsed_ms", float64(elapsed.Microseconds())/1000),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if ce := FromContext(ctx).Check(lvl, "db.query"); ce != nil {
		ce.Write(fields...)
	}
}

// describeStatement returns the leading DML verb and the table it targets.
// CTE prefixes are skipped; anything unrecognised is "UNKNOWN" with no table.
func describeStatement(sql string) (string, string) {
	tokens := strings.Fields(strings.TrimSpace(sql))
	for i := 0; i < len(tokens); i++ {
		verb := strings.ToUpper(strings.Trim(tokens[i], "();"))
		var marker string
		switch verb {
		case "SELECT", "DELETE":
			marker = "FROM"
		case "INSERT":
			marker = "INTO"
		case "UPDATE":
			return verb, tableAt(tokens, i+1)
		default:
			continue
		}
		for j := i + 1; j < len(tokens); j++ {
			if strings.EqualFold(tokens[j], marker) {
				return verb, tableAt(tokens, j+1)
			}
		}
		return verb, ""
	}
	return "UNKNOWN", ""
}

func tableAt(tokens []string, i int) string {
	if i >= len(tokens) {
		return ""
	}
	return strings.Trim(tokens[i], "\"`();")
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
