package wsutil

import "log/slog"

// SafeSend sends data to a connection's send channel without blocking.
// A full buffer drops the message; a closed channel is recovered and logged.
func SafeSend(ch chan []byte, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("send on closed channel", "tag", "wsutil", "panic", r)
		}
	}()
	select {
	case ch <- data:
	default:
	}
}
