package transfer

import (
	"io"

	"github.com/bitrise-io/go-utils/v2/log"
)

// streamChunks copies exactly total bytes from src to dst in chunks of at most
// chunkSize bytes, reporting progress after every chunk. Bytes past total are
// never read. A source that ends early yields io.ErrUnexpectedEOF.
func streamChunks(dst io.Writer, src io.Reader, total int64, chunkSize int, cb Callback) (int64, error) {
	buf := make([]byte, chunkSize)
	var processed int64
	for processed < total {
		want := int64(len(buf))
		if remaining := total - processed; remaining < want {
			want = remaining
		}

		n, readErr := src.Read(buf[:want])
		if n > 0 {
			written, err := dst.Write(buf[:n])
			processed += int64(written)
			if err != nil {
				return processed, err
			}
			if written != n {
				return processed, io.ErrShortWrite
			}
			cb.OnUpdate(processed, total)
		}

		if readErr == io.EOF {
			if processed < total {
				return processed, io.ErrUnexpectedEOF
			}
			break
		}
		if readErr != nil {
			return processed, readErr
		}
	}
	return processed, nil
}

type closer interface {
	Close() error
}

func closeWithWarning(c closer, name string, logger log.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("Failed to close %s: %s", name, err)
	}
}
