// Package fs abstracts the filesystem operations of the local blob store so
// tests can inject I/O failures.
//
// Production code uses Default:
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
//
// Tests wrap it in a FaultyFS:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".tmp", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
package fs
