package models

import "errors"

// ErrBeforeTriggerMustBlock is returned by Automation.Validate when an
// on_before_* trigger is configured non-blocking.
var ErrBeforeTriggerMustBlock = errors.New("on_before_* triggers require blocking=true")
