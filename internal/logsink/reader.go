// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logsink

import (
	"bufio"
	"io"
	"os"
)

// Reader tails a run's log file by re-scanning from its own offset on
// every poll, per observer. Multiple Readers over the same file never
// coordinate: the file is append-only and each Reader only ever moves
// forward.
type Reader struct {
	path   string
	offset int64
}

// NewReader opens a tailing reader positioned at the start of the file.
func NewReader(logsDir, runID string) *Reader {
	return &Reader{path: Path(logsDir, runID)}
}

// Poll returns any lines written since the last Poll call, or nil if
// none. A missing file (not yet created by the worker) is not an error:
// it simply yields no lines yet.
func (r *Reader) Poll() ([]string, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(r.offset, io.SeekStart); err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var read int64
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		read += int64(len(scanner.Bytes())) + 1 // +1 for the newline
	}
	if err := scanner.Err(); err != nil {
		return lines, err
	}

	r.offset += read
	return lines, nil
}
