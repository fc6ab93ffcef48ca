// Package mmap maps matrix files read-only into memory.
//
// Matrix files are immutable once sealed, so a shared read-only mapping lets
// every concurrent query read rows without copying them through kernel
// buffers and without any locking.
//
//	m, err := mmap.Open("study.rnam")
//	if err != nil { ... }
//	defer m.Close()
//	_ = m.Advise(mmap.AccessRandom)
//	data := m.Bytes()
//
// Unix platforms use mmap(2)/madvise(2) through golang.org/x/sys/unix;
// Windows uses CreateFileMapping/MapViewOfFile and ignores access hints.
package mmap
