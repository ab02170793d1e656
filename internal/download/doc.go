package download

// Package download implements the cancellable download pipeline built on top of
// a fetch.Fetcher (yt-dlp via github.com/lrstanley/go-ytdlp in production). A
// Worker owns one job and its state machine; a Cleaner removes partial
// artifacts, eagerly on cancel and again later once the OS releases file
// handles; the Service is the command and event surface used by front ends.
