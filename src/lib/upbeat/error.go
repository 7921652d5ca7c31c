package upbeat

import (
	"errors"
	"fmt"
)

const subsystemMask = 0x00ff_0000_0000_0000
const taskIDMask = 0x0000_ffff_0000_0000
const errorNumberMask = 0x0000_0000_0000_ffff

// NoError is the zero value; it is never returned as an error.
const NoError = Error(0)

// Error is a coded error: subsystem, the id of the task that hit it
// and the error number, packed in one word.  Texts live in a table
// that subsystems fill in at init time via RegisterError.
type Error uint64

// RawError is an error with just the constant part of the value filled in.
type RawError uint64

var errorMap = make(map[RawError]string)

// ErrorValue builds the constant part of an error from a subsystem and a
// number within it.
func ErrorValue(subsys byte, errorNumber uint16) RawError {
	ss := subsystemMask & (uint64(subsys) << 48)
	en := errorNumberMask & (uint64(errorNumber) << 0)
	return RawError(ss | en)
}

// RegisterError attaches the human readable text to a raw error. Only
// call this from package init.
func RegisterError(raw RawError, text string) RawError {
	errorMap[raw] = text
	return raw
}

// MakeError adds the dynamic fields (the task id) to the error value.
func MakeError(rawError RawError, id uint32) Error {
	raw := uint64(rawError)
	tid := (uint64(id) << 32) & taskIDMask
	return Error(raw | tid)
}

func (r RawError) Subsystem() byte {
	return byte((uint64(r) & subsystemMask) >> 48)
}

func (r RawError) Number() uint16 {
	return uint16(uint64(r) & errorNumberMask)
}

func (r RawError) Error() string {
	t, ok := errorMap[r]
	if !ok {
		return fmt.Sprintf("unknown error code %x", uint64(r))
	}
	return t
}

// Raw strips the dynamic fields.
func (e Error) Raw() RawError {
	return RawError(uint64(e) &^ taskIDMask)
}

// TaskID is the id that was recorded when the error was made.
func (e Error) TaskID() uint32 {
	return uint32((uint64(e) & taskIDMask) >> 32)
}

func (e Error) Error() string {
	return fmt.Sprintf("task %d: %s", e.TaskID(), e.Raw().Error())
}

// Is makes errors.Is match on the constant part, so a caller can compare
// against the RawError a subsystem exports.
func (e Error) Is(target error) bool {
	var raw RawError
	if errors.As(target, &raw) {
		return e.Raw() == raw
	}
	var other Error
	if errors.As(target, &other) {
		return e.Raw() == other.Raw()
	}
	return false
}
