package streaming

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// segmentSuffix marks a manifest line as a segment reference.
const segmentSuffix = ".ts"

var newline = regexp.MustCompile(`\r\n|\r|\n`)

// SignFunc turns a segment file name into the URL that replaces it.
type SignFunc func(filename string) (string, error)

// Rewrite replaces every line whose trimmed form ends in ".ts" with
// sign(trimmed line). Other lines are kept as they are. Lines are split on
// any newline convention and joined with "\n".
func Rewrite(raw []byte, sign SignFunc) ([]byte, error) {
	lines := newline.Split(string(raw), -1)

	var out bytes.Buffer
	out.Grow(len(raw) * 2)
	for i, line := range lines {
		if i > 0 {
			out.WriteByte('\n')
		}
		trimmed := strings.TrimSpace(line)
		if !strings.HasSuffix(trimmed, segmentSuffix) {
			out.WriteString(line)
			continue
		}
		signed, err := sign(trimmed)
		if err != nil {
			return nil, fmt.Errorf("sign segment %q: %w", trimmed, err)
		}
		out.WriteString(signed)
	}
	return out.Bytes(), nil
}
