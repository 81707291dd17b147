//go:build !linux

package sink

func writeProcessMemory(pid int, addr uintptr, data []byte) error {
	return ErrUnsupportedOS
}

func FindProcess(name string) (int, error) {
	return 0, ErrUnsupportedOS
}
