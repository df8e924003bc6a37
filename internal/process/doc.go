// Package process stops the browser process trees the renderer launches.
package process

import "time"

// DefaultGrace is how long Terminate waits for a polite exit before
// killing.
const DefaultGrace = 500 * time.Millisecond

// pollInterval is how often Terminate checks whether the tree exited.
const pollInterval = 25 * time.Millisecond
