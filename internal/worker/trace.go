package worker

import (
	"errors"
	"fmt"
	"strings"
)

// errorTrace renders an error chain one link per line, outermost first
func errorTrace(err error) string {
	if err == nil {
		return ""
	}

	var b strings.Builder
	for i, cur := 0, err; cur != nil; i, cur = i+1, errors.Unwrap(cur) {
		fmt.Fprintf(&b, "#%d %T: %s\n", i, cur, cur.Error())
	}
	return b.String()
}
