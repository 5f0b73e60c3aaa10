// Package gateway defines the contract with the remote video service and
// provides two backends for it. Playlist listing, video metadata and
// downloads are blocking calls; transfer progress is reported through a
// single registered callback as loosely typed events.
package gateway
