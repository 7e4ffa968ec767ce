// Package domain holds the value types shared by the filtering pipeline:
// blocklist entries, connections, requests, filter decisions and the
// service state machine. Pure value types, no external dependencies.
package domain
