package helpers

import (
	"io"
)

func WriteAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}

// WriteLine writes line with trailing '\n' in one Write call when possible.
// buf is scratch space reused between calls, returned for next call.
func WriteLine(w io.Writer, buf []byte, line string) ([]byte, error) {
	buf = append(append(buf[:0], line...), '\n')
	return buf, WriteAll(w, buf)
}
