//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package instance

import (
	"errors"
	"os"
)

var errWouldBlock = errors.New("lock занят")

// tryLock — на платформах без flock/LockFileEx блокировка не выполняется,
// остаётся только эксклюзивное создание WAL-файла.
func tryLock(_ *os.File) error {
	return nil
}

func unlock(_ *os.File) error {
	return nil
}
