// Package paging implements the per-task address space bookkeeping
// spec'd in the kernel's paging contract: a shared kernel mapping, a
// per-PID user image mapping backed by the (pid+1)*4MiB physical
// convention, a vidmap mapping, and the video-PTE remap that keeps
// terminal output going to the right screen. Consistent with this
// module's hosted-simulator posture, entries are plain Pa_t values
// carrying the real x86 PTE flag bits (mem.PTE_P, mem.PTE_W, ...) so the
// invariants in the testable-properties list can be asserted directly,
// without requiring this package to also serve real memory accesses —
// that is left to the packages that actually read/write bytes (mem,
// term, fs).
package paging

import (
	"sync"

	"github.com/bjackson/ece391mp/defs"
	"github.com/bjackson/ece391mp/mem"
)

const (
	/// PageSize4M is the size of a large page in bytes.
	PageSize4M = 4 * 1024 * 1024

	/// KernelVirt is the virtual address of the kernel's 4MiB global image.
	KernelVirt = 4 * 1024 * 1024
	/// UserVirt is the virtual address every user program is loaded at.
	UserVirt = 128 * 1024 * 1024
	/// UserTop is the first virtual address past the user image.
	UserTop = UserVirt + PageSize4M
	/// VidmapVirt is the virtual address vidmap() maps the video page to.
	VidmapVirt = 1024 * 1024 * 1024
)

/// Dir_t is one PID's page directory: the handful of PTEs this kernel
/// actually needs, rather than a full 1024-entry array, since every
/// other low-table and 1GiB-table slot stays unmapped for the lifetime
/// of the system.
type Dir_t struct {
	mu sync.Mutex

	/// KernelPTE is the 4MiB supervisor-global page at KernelVirt.
	KernelPTE mem.Pa_t
	/// UserPTE is the 4MiB user page at UserVirt, zero until a program
	/// has been loaded into this PID.
	UserPTE mem.Pa_t
	/// VideoPTE is the low-table entry for the VGA text page: either the
	/// real physical video page or this task's terminal backing page.
	VideoPTE mem.Pa_t
	/// VidmapPTE is the 1GiB-table entry installed by vidmap(), zero
	/// until the syscall has been used.
	VidmapPTE mem.Pa_t
}

/// KernelPresent reports whether the kernel's 4MiB page is mapped
/// present and global, the invariant every directory must hold.
func (d *Dir_t) KernelPresent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.KernelPTE&mem.PTE_P != 0 && d.KernelPTE&mem.PTE_G != 0
}

/// UserPresent reports whether a program has been loaded into this PID.
func (d *Dir_t) UserPresent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.UserPTE&mem.PTE_P != 0
}

/// VideoTarget returns the physical page the VIDEO virtual address
/// currently resolves to for this directory.
func (d *Dir_t) VideoTarget() mem.Pa_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.VideoPTE &^ mem.PGOFFSET
}

/// VidmapTarget returns the physical page VidmapVirt resolves to, and
/// whether vidmap() has been called for this PID.
func (d *Dir_t) VidmapTarget() (mem.Pa_t, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.VidmapPTE&mem.PTE_P == 0 {
		return 0, false
	}
	return d.VidmapPTE &^ mem.PGOFFSET, true
}

/// Tables_t owns install_kernel_mapping's one-time state and every
/// live PID's directory.
type Tables_t struct {
	mu sync.Mutex

	kernelPTE mem.Pa_t
	videoPhys mem.Pa_t
	dirs      map[defs.Pid_t]*Dir_t
}

/// NewTables returns an empty set of directories; InstallKernelMapping
/// must run before TaskSpaceInit.
func NewTables() *Tables_t {
	return &Tables_t{dirs: make(map[defs.Pid_t]*Dir_t)}
}

/// InstallKernelMapping records the one-time global mappings:
/// the kernel's 4MiB supervisor-global page, and the physical video
/// page that every directory's VideoPTE starts out pointing at.
func (t *Tables_t) InstallKernelMapping(videoPhys mem.Pa_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kernelPTE = mem.Pa_t(KernelVirt) | mem.PTE_P | mem.PTE_W | mem.PTE_G | mem.PTE_PS
	t.videoPhys = (videoPhys &^ mem.PGOFFSET) | mem.PTE_P | mem.PTE_W
}

/// TaskSpaceInit resets pid's directory: the kernel mapping, the video
/// mapping pointed at the real physical video page, and a fresh 4MiB
/// user page backed by physical (pid+1)*4MiB. The vidmap entry starts
/// absent.
func (t *Tables_t) TaskSpaceInit(pid defs.Pid_t) *Dir_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	userPhys := mem.Pa_t(uintptr(pid+1) * PageSize4M)
	d := &Dir_t{
		KernelPTE: t.kernelPTE,
		VideoPTE:  t.videoPhys,
		UserPTE:   userPhys | mem.PTE_P | mem.PTE_W | mem.PTE_U | mem.PTE_PS,
	}
	t.dirs[pid] = d
	return d
}

/// Dir returns pid's directory, if one has been installed.
func (t *Tables_t) Dir(pid defs.Pid_t) (*Dir_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.dirs[pid]
	return d, ok
}

/// Teardown removes pid's directory, reverting any partial install —
/// execute's failure path calls this to restore the parent's directory
/// as the active one without leaving a half-built directory behind.
func (t *Tables_t) Teardown(pid defs.Pid_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.dirs, pid)
}

/// MapPage rewrites a single 4KiB PTE to point at phys with the given
/// access level. Both addresses must already be page-aligned; callers
/// violating that are asking for a silently wrong mapping, same as on
/// real hardware.
func MapPage(pte *mem.Pa_t, phys mem.Pa_t, access defs.Access) {
	flags := mem.PTE_P | mem.PTE_W
	if access == defs.AccessUser {
		flags |= mem.PTE_U
	}
	*pte = (phys &^ mem.PGOFFSET) | flags
}

/// UnmapPage clears a single PTE.
func UnmapPage(pte *mem.Pa_t) {
	*pte = 0
}

/// VidmapInstall maps the physical video page to VidmapVirt for pid,
/// user-accessible, and returns the virtual address the vidmap syscall
/// hands back to its caller.
func (t *Tables_t) VidmapInstall(pid defs.Pid_t) (uintptr, bool) {
	t.mu.Lock()
	videoPhys := t.videoPhys
	t.mu.Unlock()

	d, ok := t.Dir(pid)
	if !ok {
		return 0, false
	}
	d.mu.Lock()
	MapPage(&d.VidmapPTE, videoPhys&^mem.PGOFFSET, defs.AccessUser)
	d.mu.Unlock()
	return VidmapVirt, true
}

/// RemapVideo is the invariant that makes output-to-terminal work: it
/// points newPid's VIDEO PTE at the real screen if newPid's terminal is
/// the visible one, otherwise at that terminal's backing page, and
/// applies the same rule to oldPid's own directory. Either PID may be
/// defs.KernelPid, in which case it is skipped (the kernel has no
/// directory of its own).
func (t *Tables_t) RemapVideo(oldPid, newPid defs.Pid_t, oldTerm, newTerm, currentTerminal defs.Term_t, backing [defs.NumTerms]mem.Pa_t) {
	t.mu.Lock()
	videoPhys := t.videoPhys
	t.mu.Unlock()

	apply := func(pid defs.Pid_t, term defs.Term_t) {
		d, ok := t.Dir(pid)
		if !ok {
			return
		}
		d.mu.Lock()
		if term == currentTerminal {
			d.VideoPTE = videoPhys
		} else {
			d.VideoPTE = (backing[term] &^ mem.PGOFFSET) | mem.PTE_P | mem.PTE_W
		}
		d.mu.Unlock()
	}
	if newPid != defs.KernelPid {
		apply(newPid, newTerm)
	}
	if oldPid != defs.KernelPid {
		apply(oldPid, oldTerm)
	}
}
