// Package config defines the persisted farmctl configuration: the list of
// known workers and the process-wide settings, plus the Store through which
// all mutations flow so the in-memory view and the file on disk never
// diverge.
package config
