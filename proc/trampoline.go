package proc

import (
	"context"
	"encoding/binary"
)

// trampolineFrameSize is the fixed number of bytes the delivery pass
// reserves on the simulated user stack for two 8-byte words: the
// interrupted instruction pointer, stored as the handler's return address,
// and the signal number. No trampoline code bytes are copied; Sigret is
// called directly once the handler finishes.
const trampolineFrameSize = 16

// deliverToHandler builds the signal-delivery trampoline frame described in
// spec section 4.7: back up the interrupted trap frame and mask (so sigret
// can restore them byte for byte), mask every signal for the duration of
// the handler, push signum below the saved return address on the process's
// simulated user stack, then rewrite the trap frame so the process resumes
// at the handler with that stack and signum in its first argument register.
func (k *Kernel) deliverToHandler(p *PCB, signum int) {
	p.UserTFBackup = p.Tf.Clone()
	p.SMBackup = p.SignalMask.Load()
	p.SignalMask.Store(^uint32(0))

	esp := p.Tf.Esp
	if esp < trampolineFrameSize || esp > uint64(len(p.UserMem)) {
		esp = uint64(len(p.UserMem))
	}
	newEsp := esp - trampolineFrameSize
	binary.LittleEndian.PutUint64(p.UserMem[newEsp:newEsp+8], p.Tf.Eip)
	binary.LittleEndian.PutUint64(p.UserMem[newEsp+8:newEsp+16], uint64(signum))

	p.Tf.Esp = newEsp
	p.Tf.Eip = uint64(p.Handler(signum))
	p.Tf.Regs[0] = uint64(signum)

	k.log(LevelDebug, "signal: delivering to handler", map[string]any{
		"pid": p.Pid.Load(), "signum": signum, "handler": p.Handler(signum),
	})
}

// Sigret implements the other half of the trampoline round trip: restore
// the trap frame and signal mask exactly as they stood before delivery,
// per spec section 4.7, then re-run the delivery pass so any signal posted
// while the handler ran (now unmasked again) is dispatched immediately
// instead of waiting for the next trap return -- matching original_source/
// proc.c's sigret(), which ends with its own call to handle_sig(). Calling
// it with no pending delivery is a programming-contract violation -- the
// trampoline is the only caller.
func (k *Kernel) Sigret(ctx context.Context) {
	p := Current(ctx)
	if p == nil {
		panicInvariant("sigret: no current process")
	}
	if p.UserTFBackup == nil {
		panicInvariant("sigret: no pending signal frame")
	}
	p.Tf = p.UserTFBackup
	p.UserTFBackup = nil
	p.SignalMask.Store(p.SMBackup)
	k.HandleSig(ctx)
}
