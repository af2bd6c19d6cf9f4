package web

import (
	"fmt"
	"runtime"
)

// MessageType classifies a trace record.
type MessageType int

const (
	MessageTrace MessageType = iota
	MessageLog
	MessageWarning
	MessageError
)

func (t MessageType) String() string {
	switch t {
	case MessageTrace:
		return "trace"
	case MessageLog:
		return "log"
	case MessageWarning:
		return "warning"
	case MessageError:
		return "error"
	}
	return "unknown"
}

// SourcePos identifies where a message was recorded.
type SourcePos struct {
	File string
	Line int
}

func (p SourcePos) String() string {
	if p.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// Message is one trace record accumulated on a request context and consumed
// by log handlers at the logging stage.
type Message struct {
	Text string
	Pos  SourcePos
	Type MessageType
}

// callerPos captures the source position of the caller's caller.
func callerPos() SourcePos {
	if _, file, line, ok := runtime.Caller(2); ok {
		return SourcePos{File: file, Line: line}
	}
	return SourcePos{}
}
