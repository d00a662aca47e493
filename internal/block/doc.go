// Package block implements the fixed-size block device at the bottom of the
// blabber storage stack: a file divided into Size-byte blocks, each
// individually checksummed, that can be opened, grown, read, written, and
// synced. It knows nothing about transactions, journaling, or the shape of
// the bytes it stores.
package block
