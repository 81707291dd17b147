package sink

import (
	"fmt"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

func writeProcessMemory(pid int, addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	local := []unix.Iovec{{Base: &data[0]}}
	local[0].SetLen(len(data))
	remote := []unix.RemoteIovec{{Base: addr, Len: len(data)}}

	n, err := unix.ProcessVMWritev(pid, local, remote, 0)
	if err != nil {
		return fmt.Errorf("process_vm_writev at 0x%x: %w", addr, err)
	}
	if n != len(data) {
		return fmt.Errorf("process_vm_writev at 0x%x: short write %d/%d", addr, n, len(data))
	}
	return nil
}

// FindProcess returns the pid of the first process whose command name is
// name.
func FindProcess(name string) (int, error) {
	procs, err := procfs.AllProcs()
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}
	for _, p := range procs {
		comm, err := p.Comm()
		if err != nil {
			// process exited while scanning
			continue
		}
		if comm == name {
			return p.PID, nil
		}
	}
	return 0, fmt.Errorf("%s: %w", name, ErrProcessNotFound)
}
