// Package driver wraps every domain operation in a transaction: it begins
// one, reads and verifies the master block, opens the allocator on its
// anchor, hands the caller a Context to run a domain operation against,
// then flushes the allocator's anchor back to block 0 and commits -- or
// rolls back on any error, including a panic recovered partway through.
// A single sync.Mutex serializes every call, matching the single-writer
// model: there is never more than one transaction in flight.
package driver
