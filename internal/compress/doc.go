// Package compress provides LZ4 and zstd compression for record payloads
// and backup streams.
package compress
