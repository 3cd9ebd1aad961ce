/*
 *
 *  * Licensed to the Apache Software Foundation (ASF) under one or more
 *  * contributor license agreements.  See the NOTICE file distributed with
 *  * this work for additional information regarding copyright ownership.
 *  * The ASF licenses this file to You under the Apache License, Version 2.0
 *  * (the "License"); you may not use this file except in compliance with
 *  * the License.  You may obtain a copy of the License at
 *  *
 *  *     http://www.apache.org/licenses/LICENSE-2.0
 *  *
 *  * Unless required by applicable law or agreed to in writing, software
 *  * distributed under the License is distributed on an "AS IS" BASIS,
 *  * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *  * See the License for the specific language governing permissions and
 *  * limitations under the License.
 *
 */

package protocol

import (
	"bufio"
	"errors"
	"io"
)

// DefaultMaxLineBytes bounds one protocol line, newline included.
const DefaultMaxLineBytes = 512

var ErrLineTooLong = errors.New("message too long")

// LineReader frames a byte stream into newline-terminated lines of bounded length.
type LineReader struct {
	r   *bufio.Reader
	max int
	// skipEOL drops the line end left behind by a bare handshake keyword.
	skipEOL bool
}

func NewLineReader(r io.Reader, maxLineBytes int) *LineReader {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &LineReader{r: bufio.NewReaderSize(r, maxLineBytes), max: maxLineBytes}
}

func (lr *LineReader) MaxLineBytes() int { return lr.max }

// ReadLine returns the next line including its newline. A final line without
// newline is returned as is, followed by io.EOF on the next call.
//
// A line longer than the limit is consumed up to its newline, or to the end
// of the stream, and reported as ErrLineTooLong; the reader stays usable for
// the following line.
func (lr *LineReader) ReadLine() ([]byte, error) {
	if lr.skipEOL {
		lr.skipEOL = false
		if err := lr.dropLineEnd(); err != nil {
			return nil, err
		}
	}
	line, err := lr.r.ReadSlice('\n')
	switch {
	case err == nil:
		return clone(line), nil
	case errors.Is(err, bufio.ErrBufferFull):
		return nil, lr.drain()
	case errors.Is(err, io.EOF) && len(line) > 0:
		return clone(line), nil
	}
	return nil, err
}

func (lr *LineReader) drain() error {
	for {
		_, err := lr.r.ReadSlice('\n')
		switch {
		case err == nil:
			return ErrLineTooLong
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return ErrLineTooLong
		}
		return err
	}
}

// dropLineEnd discards blanks and at most one newline.
func (lr *LineReader) dropLineEnd() error {
	for {
		p, err := lr.r.Peek(1)
		if err != nil {
			return err
		}
		switch p[0] {
		case ' ', '\t', '\r':
			_, _ = lr.r.Discard(1)
		case '\n':
			_, _ = lr.r.Discard(1)
			return nil
		default:
			return nil
		}
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
