package netloop

import "golang.org/x/sys/unix"

// fdBits is the width of one unix.FdSet.Bits element on the platforms this
// package targets (linux/amd64, linux/arm64): 64-bit words.
const fdBits = 64

func fdZero(set *unix.FdSet) {
	for i := range set.Bits {
		set.Bits[i] = 0
	}
}

func fdAdd(fd int, set *unix.FdSet) {
	set.Bits[fd/fdBits] |= 1 << uint(fd%fdBits)
}

func fdClr(fd int, set *unix.FdSet) {
	set.Bits[fd/fdBits] &^= 1 << uint(fd%fdBits)
}

func fdIsSet(fd int, set *unix.FdSet) bool {
	return set.Bits[fd/fdBits]&(1<<uint(fd%fdBits)) != 0
}

func fdCopy(dst, src *unix.FdSet) {
	copy(dst.Bits[:], src.Bits[:])
}
