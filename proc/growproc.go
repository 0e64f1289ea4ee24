package proc

import "context"

// GrowProc changes the calling process's address space size by n bytes
// (n may be negative to shrink), the operation the original spec.md
// distilled out but original_source/proc.c implements as growproc(): sbrk
// ultimately calls it to service heap growth. Delegates entirely to the
// collab.AddressSpace collaborator; this package only updates Sz on
// success.
func (k *Kernel) GrowProc(ctx context.Context, n int) error {
	p := Current(ctx)
	if p == nil {
		panicInvariant("growproc: no current process")
	}
	newSize, err := p.AddrSpace.Grow(int64(n))
	if err != nil {
		return &ResourceError{Op: "growproc", Cause: err}
	}
	p.Sz = newSize
	return nil
}
