package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
)

// Goldmark instances are safe for concurrent Convert calls, so one
// converter serves the whole worker pool.
var md = goldmark.New()

// Markdown converts a Markdown fragment to an HTML fragment.
func Markdown(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("markdown conversion: %w", err)
	}
	return buf.Bytes(), nil
}
