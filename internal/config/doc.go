// Package config loads, normalizes, and validates timelapse configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TIMELAPSE_DEVICE_TOKEN. The Config type centralizes every knob the daemon,
// the delivery pipeline, and the reference collector need.
//
// Capture settings are re-read on every cycle through Live, which the daemon
// refreshes on SIGHUP. Delivery and storage settings are fixed for the life of
// a process.
package config
