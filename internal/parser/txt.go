package parser

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

type txtParser struct{}

// txtSeparators splits on runs of whitespace and commas.
var txtSeparators = regexp.MustCompile(`[\s,]+`)

func (txtParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".txt")
}

func (txtParser) Parse(r io.Reader) ([][]string, error) {
	var recs [][]string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		recs = append(recs, txtSeparators.Split(line, -1))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read txt: %w", err)
	}
	return recs, nil
}
