package cask

import "errors"

// ErrLocked is returned by Open/OpenWithThreshold when another process
// already holds the advisory lock on the data file's path.
var ErrLocked = errors.New("cask: data file is locked by another process")
