// Package sensor maps decoded frames onto named sensor values.
//
// A Table is built once from a list of Descriptors. Each protocol.Reading is
// applied with Update, which publishes a new immutable Snapshot. Consumers on
// other goroutines call Snapshot and never observe a half-applied reading.
package sensor
