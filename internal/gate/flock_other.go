//go:build !unix

package gate

import "os"

const flockSupported = false

func tryLock(string) (*os.File, bool, error) {
	return nil, false, ErrFileLockUnsupported
}

func unlock(*os.File) error {
	return ErrFileLockUnsupported
}
