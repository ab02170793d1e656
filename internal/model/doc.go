package model

// Package model defines domain data structures used across the app: download
// jobs, target bitrates, worker states, progress telemetry and the events a
// worker delivers to its caller. Jobs are immutable values; states follow an
// explicit transition table.
