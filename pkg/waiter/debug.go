package waiter

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/shm-waiter/internal/logger"
	internalshm "github.com/srediag/shm-waiter/internal/shm"
)

var internalLogger = logger.New("waiter", os.Stdout)

// SetLogOutput redirects the package logger.
func SetLogOutput(out io.Writer) {
	internalLogger.SetOutput(out)
}

// DebugStateDetail prints the State block stored at offset in the file at path.
// The file is read, not mapped, so the view is a copy.
func DebugStateDetail(out io.Writer, path string, offset int) error {
	mem, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if offset < 0 || len(mem)-offset < StateSize {
		return fmt.Errorf("%w: %s holds %d bytes, need %d at offset %d", ErrShortBuffer, path, len(mem), StateSize, offset)
	}
	p := unsafe.Pointer(&mem[offset])
	if !internalshm.Aligned(p, 8) {
		// os.ReadFile buffers are heap allocated and 8-aligned, only odd offsets land here.
		return ErrMisaligned
	}
	snap := (*State)(p).snapshot()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	fmt.Fprintf(buf, "path:%s offset:%d %s\n", path, offset, snap)
	_, err = out.Write(buf.B)
	return err
}
