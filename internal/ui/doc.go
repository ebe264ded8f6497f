// Package ui renders easyfire output in the terminal.
//
// Printer is used by the one-shot CLI commands (scan, dump, decode, config)
// and renders headers, result boxes, frame lines and sensor tables with
// Lipgloss. DashboardModel is the Bubble Tea model behind "easyfire-cli
// watch": it is fed SnapshotMsg values from a bridge's WebSocket stream and
// redraws the sensor table on every update.
//
// Logging is controlled via the EASYFIRE_LOG_LEVEL environment variable.
// When unset, zap logging is silent so the styled output stays clean.
package ui
