package log

// MultiLogger fans events out in order, e.g. to a SlogAdapter for the
// console and a FileLogger for the capture.
type MultiLogger []Logger

// NewMultiLogger drops nil entries from loggers.
func NewMultiLogger(loggers ...Logger) MultiLogger {
	m := make(MultiLogger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			m = append(m, l)
		}
	}
	return m
}

// Log passes event to every logger.
func (m MultiLogger) Log(event Event) {
	for _, l := range m {
		l.Log(event)
	}
}

var _ Logger = MultiLogger(nil)
