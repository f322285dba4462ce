package relayserver

import "net"

// readResult is one chunk pulled off a connection, or the terminal error
// that ended the pump.
type readResult struct {
	data []byte
	err  error
}

// pump continuously reads conn into a channel so the state-machine
// goroutine can select between new bytes arriving and a promotion/pairing
// signal instead of blocking inside a bare conn.Read call. Grounded on
// internal/shared/prouter/prouter.go's MessageRouter.listen(), which runs
// the same blocking-read-into-channel loop for its framed protocol.
//
// pump never closes out; the final entry always carries a non-nil err,
// and consumers stop reading once they see one.
func pump(conn net.Conn, out chan<- readResult) {
	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			out <- readResult{data: cp}
		}
		if err != nil {
			out <- readResult{err: err}
			return
		}
	}
}

// readLine accumulates chunks from readCh (starting from any bytes
// already in buf) until it finds a newline, returning the line (without
// the newline) and the bytes left over after it.
func readLine(readCh <-chan readResult, buf []byte) (line string, rest []byte, err error) {
	for {
		for i, b := range buf {
			if b == '\n' {
				return string(buf[:i]), buf[i+1:], nil
			}
		}
		rr := <-readCh
		if rr.err != nil {
			return "", nil, rr.err
		}
		buf = append(buf, rr.data...)
	}
}
