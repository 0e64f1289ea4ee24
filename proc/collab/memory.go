package collab

import "sync/atomic"

// pageSize mirrors the one-page kernel-stack allocation unit named in spec
// section 4.2.
const pageSize = 4096

// heapAllocator is the default PageAllocator: plain Go heap allocation with
// an optional failure injection hook for exercising the
// resource-exhaustion paths named in spec section 7.
type heapAllocator struct {
	fail func() bool
}

// NewHeapAllocator returns a PageAllocator backed by ordinary Go heap
// allocation. failFn, if non-nil, is consulted on every Alloc and causes it
// to return ErrAllocFailed when it returns true; pass nil for unconditional
// success.
func NewHeapAllocator(failFn func() bool) PageAllocator {
	return &heapAllocator{fail: failFn}
}

func (h *heapAllocator) Alloc() ([]byte, error) {
	if h.fail != nil && h.fail() {
		return nil, ErrAllocFailed
	}
	return make([]byte, pageSize), nil
}

func (h *heapAllocator) Free([]byte) {}

// memAddressSpace is the default AddressSpace: a size counter standing in
// for a real page table. It holds no bytes and has no paging semantics;
// Copy returns a new, independent space of the same size, which is all of
// fork's "fresh user-physical copy" that is modeled here.
type memAddressSpace struct {
	size atomic.Uint64
	fail func() bool
}

// NewAddressSpace returns an AddressSpace with the given initial size.
// failFn, if non-nil, is consulted by Copy/Grow to simulate allocation
// failure.
func NewAddressSpace(initialSize uint64, failFn func() bool) AddressSpace {
	a := &memAddressSpace{fail: failFn}
	a.size.Store(initialSize)
	return a
}

func (a *memAddressSpace) Copy() (AddressSpace, error) {
	if a.fail != nil && a.fail() {
		return nil, ErrAllocFailed
	}
	return NewAddressSpace(a.size.Load(), a.fail), nil
}

func (a *memAddressSpace) Grow(delta int64) (uint64, error) {
	if a.fail != nil && a.fail() {
		return a.size.Load(), ErrAllocFailed
	}
	cur := int64(a.size.Load()) + delta
	if cur < 0 {
		cur = 0
	}
	a.size.Store(uint64(cur))
	return uint64(cur), nil
}

func (a *memAddressSpace) Switch() {}

func (a *memAddressSpace) Free() { a.size.Store(0) }

// memInode is a trivial refcounted Inode used as the default Cwd.
type memInode struct {
	path string
	refs *atomic.Int32
}

// NewInode returns an Inode identified only by a debug path; it has no
// on-disk backing.
func NewInode(path string) Inode {
	refs := &atomic.Int32{}
	refs.Store(1)
	return &memInode{path: path, refs: refs}
}

func (i *memInode) Dup() Inode {
	i.refs.Add(1)
	return &memInode{path: i.path, refs: i.refs}
}

func (i *memInode) Put() { i.refs.Add(-1) }

func (i *memInode) Path() string { return i.path }

// memFile is a trivial refcounted File.
type memFile struct {
	name string
	refs *atomic.Int32
}

// NewFile returns a File identified only by a debug name.
func NewFile(name string) File {
	refs := &atomic.Int32{}
	refs.Store(1)
	return &memFile{name: name, refs: refs}
}

func (f *memFile) Dup() File {
	f.refs.Add(1)
	return &memFile{name: f.name, refs: f.refs}
}

func (f *memFile) Close() { f.refs.Add(-1) }
