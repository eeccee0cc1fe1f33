// Package logs reads the daemon's JSON session log for `timelapse logs`.
//
// timelapse.log is a pointer that each daemon run re-targets at a new
// session file, so Follow re-opens the path when the file it is reading is
// replaced or truncated. Lines can be filtered by event_type.
package logs
