// Package fetch downloads pinned source archives into the local download
// cache. An archive that is already present and non-empty is never fetched
// again.
package fetch
