package relayserver

import (
	"fmt"
	"io"
	"strings"

	"github.com/ronakgh97/r-share/internal/relay/registry"
)

// parseHandshake parses a "sessionId:role" handshake line, role being
// "sender" or "receiver".
func parseHandshake(line string) (sessionID string, role registry.Role, err error) {
	parts := strings.SplitN(strings.TrimSpace(line), ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("malformed handshake line %q", line)
	}
	switch parts[1] {
	case "sender":
		return parts[0], registry.RoleSender, nil
	case "receiver":
		return parts[0], registry.RoleReceiver, nil
	default:
		return "", "", fmt.Errorf("unknown role %q", parts[1])
	}
}

func writeLine(w io.Writer, s string) {
	_, _ = w.Write([]byte(s + "\n"))
}
