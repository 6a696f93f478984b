// Package mmap provides read-write memory mappings of file windows and
// anonymous regions.
//
// # Overview
//
// The store maps its backing file as a sequence of fixed-size windows
// ("slices") rather than one large region, so the file can grow without
// remapping what is already in use.
//
// # Usage
//
//	m, err := mmap.MapFile(f, offset, size)
//	if err != nil { ... }
//	defer m.Close()
//
//	buf := m.Bytes()
//	copy(buf[8:], payload)
//	_ = m.Sync()
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), msync(2) and madvise(2)
//   - Windows: CreateFileMapping/MapViewOfFile and FlushViewOfFile (advice is a no-op)
//
// # Thread Safety
//
// Close is idempotent and protected by an atomic flag. Callers must
// synchronize access to the bytes themselves and must not touch Bytes()
// after Close returns.
package mmap
