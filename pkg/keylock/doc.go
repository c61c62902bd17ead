// Package keylock serializes work on a key, within the process and
// optionally across replicas through a ports.DistributedLocker.
package keylock
