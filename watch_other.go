//go:build !linux

package pidlock

func watchSupported(string) bool { return true }
