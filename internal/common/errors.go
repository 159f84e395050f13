// Package common provides shared utilities for Signum
package common

import "errors"

// ErrTaskNotFound indicates a task lookup by ID found nothing
var ErrTaskNotFound = errors.New("task not found")

// TaskTimeLimitMessage marks tasks that were failed by the soft
// execution time limit rather than by an error of their own
const TaskTimeLimitMessage = "execution time limit exceeded"
