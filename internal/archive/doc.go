// Package archive unpacks the vendored source tarballs. It understands
// gzip and zstd compressed tar streams and can strip leading path
// components so a release tarball's wrapper directory disappears.
package archive
