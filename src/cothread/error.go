package cothread

import (
	"github.com/blocksds/libnds-sub001/src/lib/upbeat"
)

// Task Errors
const TaskSubsystem = 2
const TaskNoMemory = 1
const TaskInvalidArgument = 2
const TaskNotPermitted = 3
const TaskStillRunning = 4

var ErrNoMemory = upbeat.RegisterError(upbeat.ErrorValue(TaskSubsystem, TaskNoMemory),
	"not enough memory for task stack or record")
var ErrInvalidArgument = upbeat.RegisterError(upbeat.ErrorValue(TaskSubsystem, TaskInvalidArgument),
	"invalid argument or unknown task handle")
var ErrNotPermitted = upbeat.RegisterError(upbeat.ErrorValue(TaskSubsystem, TaskNotPermitted),
	"operation not permitted on this task")
var ErrStillRunning = upbeat.RegisterError(upbeat.ErrorValue(TaskSubsystem, TaskStillRunning),
	"task has not finished")

// fail adds the id of the running task (0 outside of any task) to the error.
func (s *Scheduler) fail(raw upbeat.RawError) error {
	id := uint32(0)
	if s.current != nil {
		id = uint32(s.current.handle.slot())
	}
	return upbeat.MakeError(raw, id)
}
