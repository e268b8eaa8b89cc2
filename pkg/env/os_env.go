package env

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/exp/mmap"
)

// osEnv is the production Env backed by the local file system. Random
// access reads go through a memory map when the file can be mapped, which
// keeps block fetches from seeking; the plain file descriptor is the
// fallback.
type osEnv struct{}

// Default returns the process-wide file-system Env.
func Default() Env { return osEnv{} }

func (osEnv) NewSequentialFile(name string) (SequentialFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (osEnv) NewRandomAccessFile(name string) (RandomAccessFile, error) {
	if r, err := mmap.Open(name); err == nil {
		return r, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (osEnv) NewWritableFile(name string) (WritableFile, error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &osWritableFile{file: f, w: bufio.NewWriterSize(f, 64*1024)}, nil
}

func (osEnv) FileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func (osEnv) GetFileSize(name string) (int64, error) {
	info, err := os.Stat(name)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (osEnv) RemoveFile(name string) error { return os.Remove(name) }

func (osEnv) RenameFile(src, dst string) error { return os.Rename(src, dst) }

// osWritableFile buffers appends ahead of the file descriptor.
type osWritableFile struct {
	file *os.File
	w    *bufio.Writer
}

func (f *osWritableFile) Append(p []byte) error {
	_, err := f.w.Write(p)
	return err
}

func (f *osWritableFile) Flush() error { return f.w.Flush() }

func (f *osWritableFile) Sync() error {
	if err := f.w.Flush(); err != nil {
		return err
	}
	return f.file.Sync()
}

func (f *osWritableFile) Close() error {
	flushErr := f.w.Flush()
	closeErr := f.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush on close: %w", flushErr)
	}
	return closeErr
}
