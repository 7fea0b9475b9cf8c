// Package archive groups vacancy.BlobStore implementations that keep raw
// snapshots of fetched pages, keyed by run, site and content digest.
package archive
