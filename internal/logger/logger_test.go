package logger

import (
	"testing"

	"go.astrophena.name/mindshot/internal/testutil"
)

func TestStreamerLines(t *testing.T) {
	t.Parallel()

	s := NewStreamer(10)

	s.Write([]byte("first line\nsecond line\n"))
	s.Write([]byte("partial"))
	s.Write([]byte(" line\n"))

	testutil.AssertEqual(t, s.Lines(), []string{
		"first line\n",
		"second line\n",
		"partial line\n",
	})
}

func TestStreamerWraps(t *testing.T) {
	t.Parallel()

	s := NewStreamer(2)

	s.Write([]byte("one\ntwo\nthree\n"))

	testutil.AssertEqual(t, s.Lines(), []string{
		"two\n",
		"three\n",
	})
}

func TestStream(t *testing.T) {
	t.Parallel()

	s := NewStreamer(10)

	stream, closeFunc := s.Stream()
	defer closeFunc()

	s.Write([]byte("hello\n"))

	testutil.AssertEqual(t, <-stream, "hello\n")
}
