package executor

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const markerPrefix = "__AITERM_DONE_"

// marker frames one command's output in the shell stream.
type marker struct {
	token string
}

func newMarker(now time.Time) marker {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return marker{token: fmt.Sprintf("%s%d_%s__", markerPrefix, now.UnixNano(), hex.EncodeToString(b))}
}

// echo returns the shell line that prints the marker followed by the exit
// status of the previous command. The token is split across two quoted
// strings so an echo of the input line never contains it.
func (m marker) echo() string {
	split := len(markerPrefix) - 3
	return `echo "` + m.token[:split] + `""` + m.token[split:] + `"$?`
}

// parse looks for a complete marker line in buf. output is everything before
// the marker, less anything up to and including the marker line of an earlier
// command that was abandoned before it finished.
func (m marker) parse(buf string) (output string, exitCode int, done bool) {
	idx := strings.Index(buf, m.token)
	if idx < 0 {
		return "", 0, false
	}
	rest := buf[idx+len(m.token):]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return "", 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(rest[:nl]))
	if err != nil {
		code = -1
	}
	output = buf[:idx]
	if stale := strings.LastIndex(output, markerPrefix); stale >= 0 {
		if nl := strings.IndexByte(output[stale:], '\n'); nl >= 0 {
			output = output[stale+nl+1:]
		} else {
			output = ""
		}
	}
	return strings.TrimRight(output, "\r\n"), code, true
}

// IsMarkerLine reports whether line is a completion marker printed by the
// shell. Display code uses it to hide framing from users.
func IsMarkerLine(line string) bool {
	return strings.Contains(line, markerPrefix)
}
