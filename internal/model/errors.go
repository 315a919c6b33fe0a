package model

import (
	"errors"
	"fmt"
	"time"
)

// DataDefectError reports corrupt input in one trade stream, e.g. a
// timestamp regression. It is scoped to the owning task; sibling tasks are
// unaffected.
type DataDefectError struct {
	Exchange string
	Symbol   string
	Detail   string
}

func (e *DataDefectError) Error() string {
	return fmt.Sprintf("data defect in %s %s stream: %s", e.Exchange, e.Symbol, e.Detail)
}

// NewTimestampRegression builds the DataDefectError raised by the aligner
// when a stream's timestamps go backwards.
func NewTimestampRegression(exchange, symbol string, prev, cur time.Time) *DataDefectError {
	return &DataDefectError{
		Exchange: exchange,
		Symbol:   symbol,
		Detail:   fmt.Sprintf("timestamp regression: %s followed by %s", prev.Format(time.RFC3339Nano), cur.Format(time.RFC3339Nano)),
	}
}

// ConfigurationError reports a missing or invalid piece of configuration,
// such as an absent fee schedule. Fatal for tasks that depend on it only.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Detail
}

// IsDataDefect reports whether err is (or wraps) a DataDefectError.
func IsDataDefect(err error) bool {
	var defect *DataDefectError
	return errors.As(err, &defect)
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
