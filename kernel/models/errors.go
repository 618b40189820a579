package models

import "github.com/cockroachdb/errors"

var (
	ErrNoProcess       = errors.New("no such process")
	ErrNoChildren      = errors.New("no children")
	ErrWouldBlock      = errors.New("would block")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrProcTableFull   = errors.New("process table full")
	ErrKilled          = errors.New("process killed")
	ErrInitExiting     = errors.New("init exiting")
	ErrKillInit        = errors.New("init cannot be killed")
)
