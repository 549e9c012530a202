package log

import "go.uber.org/zap"

var (
	Any      = zap.Any
	Bool     = zap.Bool
	Duration = zap.Duration
	Float64  = zap.Float64
	Int      = zap.Int
	Int32    = zap.Int32
	Int64    = zap.Int64
	String   = zap.String
	Strings  = zap.Strings
	Time     = zap.Time
	Uint64   = zap.Uint64
)

func ErrorField(err error) Field {
	return zap.Error(err)
}
