// Package targets reads the optional fts.target and fts.debug.target
// files: whitespace-separated decimal satoshi identities to look up (or
// trace) after ingestion. Per spec.md §7, a malformed file is not an
// error — reading simply stops at the first token that isn't a valid
// unsigned integer.
package targets

import (
	"bufio"
	"os"
	"strconv"
)

// Load reads whitespace-separated decimal satoshi identities from path.
// A missing file is not an error: it yields an empty, nil slice, since
// both fts.target and fts.debug.target are optional.
func Load(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []uint64
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		v, err := strconv.ParseUint(sc.Text(), 10, 64)
		if err != nil {
			break // malformed token: stop reading silently
		}
		out = append(out, v)
	}
	return out, sc.Err()
}
