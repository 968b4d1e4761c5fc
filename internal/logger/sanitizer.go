package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SanitizerCore wraps a zapcore.Core and masks sensitive field values.
type SanitizerCore struct {
	zapcore.Core
	sensitiveFields []string
	mask            string
}

func NewSanitizerCore(core zapcore.Core, sensitiveFields []string, mask string) *SanitizerCore {
	return &SanitizerCore{
		Core:            core,
		sensitiveFields: sensitiveFields,
		mask:            mask,
	}
}

func (s *SanitizerCore) With(fields []zapcore.Field) zapcore.Core {
	return &SanitizerCore{
		Core:            s.Core.With(sanitizeFields(fields, s.sensitiveFields, s.mask)),
		sensitiveFields: s.sensitiveFields,
		mask:            s.mask,
	}
}

func (s *SanitizerCore) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s.Enabled(entry.Level) {
		return checkedEntry.AddCore(entry, s)
	}
	return checkedEntry
}

func (s *SanitizerCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return s.Core.Write(entry, sanitizeFields(fields, s.sensitiveFields, s.mask))
}

func (s *SanitizerCore) Sync() error {
	return s.Core.Sync()
}

func sanitizeFields(fields []zapcore.Field, sensitiveFields []string, mask string) []zapcore.Field {
	maskedFields := make([]zapcore.Field, len(fields))
	copy(maskedFields, fields)

	for i, field := range maskedFields {
		for _, sensitive := range sensitiveFields {
			if strings.EqualFold(field.Key, sensitive) {
				maskedFields[i] = zap.String(field.Key, mask)
				break
			}
		}
	}

	return maskedFields
}
