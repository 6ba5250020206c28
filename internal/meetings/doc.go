// Package meetings is the SQLite repository behind the import pipeline.
//
// It stores one row per meeting (with the pipeline status), the raw payload of
// every extraction run, the draft tasks of the latest run and the users that
// tasks are assigned to. Status changes go through a single conditional
// UPDATE so concurrent workers cannot move a meeting backwards.
//
// Schema changes bump schemaVersion in store.go; operators delete the database
// to adopt the new schema.
package meetings
