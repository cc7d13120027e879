package gateway

import "errors"

// ErrAuthRequired is returned (and mapped to close code 1008) when a
// new connection cannot be authenticated.
var ErrAuthRequired = errors.New("gateway: authentication required")

// ErrCommandActiveMessage is the fixed concurrency-violation message from
// spec.md §4.6 / §7, returned verbatim to the client.
const ErrCommandActiveMessage = "Another command is already running. Please wait for it to complete."

// ErrWorkspaceEscapeMessage is the fixed message from spec.md §8 scenario E5.
const ErrWorkspaceEscapeMessage = "Workspace path must be within project boundaries"

// ErrSessionNotFoundMessage is the fixed message from spec.md §8 scenario 8.
const ErrSessionNotFoundMessage = "Session not found"
