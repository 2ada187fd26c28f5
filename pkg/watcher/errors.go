/*
Copyright 2025 The Kubernetes resource-state-metrics Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package watcher

import "fmt"

// ErrorKind is the closed set of internal watcher errors described in
// spec.md §9 ("Error sum types"): Connect, Decode, Desync, Server{code,reason}.
// All of these are absorbed internally by reconnect/backoff — none of them
// crosses into the controller engine's result stream (spec.md §7).
type ErrorKind int

const (
	// ErrorConnect is a transport-level failure opening list/watch.
	ErrorConnect ErrorKind = iota
	// ErrorDecode is a failure decoding a watch event off the wire.
	ErrorDecode
	// ErrorDesync is a 410 Gone / too-old-resource-version response.
	ErrorDesync
	// ErrorServer is any other server-reported error.
	ErrorServer
)

// Error is the watcher's internal error type. It is never returned to
// consumers of Watcher.Run — it is logged and folded into the backoff/relist
// state machine.
type Error struct {
	Kind    ErrorKind
	Code    int32
	Reason  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrorDesync:
		return fmt.Sprintf("watcher desync: %s", e.Message)
	case ErrorServer:
		return fmt.Sprintf("watcher server error (code=%d reason=%s): %s", e.Code, e.Reason, e.Message)
	case ErrorConnect:
		return fmt.Sprintf("watcher connect error: %v", e.Cause)
	case ErrorDecode:
		return fmt.Sprintf("watcher decode error: %v", e.Cause)
	default:
		return fmt.Sprintf("watcher error: %v", e.Cause)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// IsDesync reports whether err is a 410 Gone / too-old-resource-version
// signal, which the watcher treats as a transparent relist rather than a
// failure (spec.md §4.1, §7).
func IsDesync(err error) bool {
	var werr *Error
	if e, ok := err.(*Error); ok {
		werr = e
	}

	return werr != nil && werr.Kind == ErrorDesync
}
