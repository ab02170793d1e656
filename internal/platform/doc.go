package platform

// Package platform contains OS/platform integration: filesystem helpers for
// the destination directory, partial artifact detection, and the open-handle
// check used before deleting files another process may still hold.
