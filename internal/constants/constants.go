// Package constants defines shared configuration constants.
package constants

var (
	ConfigFile = "config.yaml"

	DefaultDir = ".atoll"

	HistoryFile = "history"

	// DefaultWatchDebounceMS is how long a changed symbol file must stay
	// quiet before it is re-checked.
	DefaultWatchDebounceMS = 250
)
