package wire

import "fmt"

// Status is a result code attached to responses and data values.
//
// The two high bits carry the severity: 00 good, 01 uncertain, 10 bad.
// Status implements error so handlers can return a code directly.
type Status uint32

const (
	StatusGood                     Status = 0x00000000
	StatusBadUnexpectedError       Status = 0x80010000
	StatusBadDecodingError         Status = 0x80070000
	StatusBadTimeout               Status = 0x800A0000
	StatusBadServiceUnsupported    Status = 0x800B0000
	StatusBadTooManyOperations     Status = 0x80100000
	StatusBadSubscriptionIDInvalid Status = 0x80280000
	StatusBadWaitingForInitialData Status = 0x80320000
	StatusBadNodeIDUnknown         Status = 0x80340000
	StatusBadAttributeIDInvalid    Status = 0x80350000
	StatusBadOutOfRange            Status = 0x803C0000
	StatusBadTypeMismatch          Status = 0x80740000
	StatusBadMethodInvalid         Status = 0x80750000
	StatusBadInvalidArgument       Status = 0x80AB0000
	StatusBadConnectionClosed      Status = 0x80AE0000
)

const severityMask = 0xC0000000

var statusNames = map[Status]string{
	StatusGood:                     "Good",
	StatusBadUnexpectedError:       "BadUnexpectedError",
	StatusBadDecodingError:         "BadDecodingError",
	StatusBadTimeout:               "BadTimeout",
	StatusBadServiceUnsupported:    "BadServiceUnsupported",
	StatusBadTooManyOperations:     "BadTooManyOperations",
	StatusBadSubscriptionIDInvalid: "BadSubscriptionIdInvalid",
	StatusBadWaitingForInitialData: "BadWaitingForInitialData",
	StatusBadNodeIDUnknown:         "BadNodeIdUnknown",
	StatusBadAttributeIDInvalid:    "BadAttributeIdInvalid",
	StatusBadOutOfRange:            "BadOutOfRange",
	StatusBadTypeMismatch:          "BadTypeMismatch",
	StatusBadMethodInvalid:         "BadMethodInvalid",
	StatusBadInvalidArgument:       "BadInvalidArgument",
	StatusBadConnectionClosed:      "BadConnectionClosed",
}

// String returns the status name, or its hex code if unnamed.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("0x%08X", uint32(s))
}

// Error implements the error interface.
func (s Status) Error() string {
	return s.String()
}

// IsGood returns true if the severity is good.
func (s Status) IsGood() bool {
	return s&severityMask == 0
}

// IsBad returns true if the severity is bad.
func (s Status) IsBad() bool {
	return s&severityMask == 0x80000000
}
