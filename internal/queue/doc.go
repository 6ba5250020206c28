// Package queue is the durable transport behind the import job queue.
//
// Messages live in SQLite. Receive leases a batch by pushing each message's
// visibility timestamp into the future and issuing a fresh receipt in one
// UPDATE ... RETURNING statement; Delete succeeds only with the receipt of the
// live lease. A consumer that crashes simply lets the lease lapse and the
// message becomes receivable again. Messages received more than the configured
// number of times are moved to a dead-letter table.
//
// Schema changes bump schemaVersion in store.go; operators delete the database
// to adopt the new schema.
package queue
