// Package platform contains filesystem and URL glue shared by the rest of the
// application: where downloaded videos live on disk, how partial files are
// exposed to a player, and how playlist URLs are recognised.
package platform
