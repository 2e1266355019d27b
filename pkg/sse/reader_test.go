package sse_test

import (
	"errors"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatwire/pkg/sse"
)

// readAll drains r and returns every event it produced.
func readAll(r *sse.Reader) []sse.Event {
	var events []sse.Event
	for {
		ev, err := r.Next()
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		if ev == nil {
			return events
		}
		events = append(events, *ev)
	}
}

var _ = Describe("Reader", func() {
	DescribeTable("parsing",
		func(input string, expected []sse.Event) {
			Expect(readAll(sse.NewReader(strings.NewReader(input)))).To(Equal(expected))
		},
		Entry("single data line", "data: hello world\n\n",
			[]sse.Event{{Data: "hello world"}}),
		Entry("type and id", "id: 42\nevent: error\ndata: {\"message\":\"boom\"}\n\n",
			[]sse.Event{{ID: "42", Type: "error", Data: `{"message":"boom"}`}}),
		Entry("multiple data lines joined with newline", "data: line one\ndata: line two\n\n",
			[]sse.Event{{Data: "line one\nline two"}}),
		Entry("empty data line kept in the join", "data: a\ndata:\ndata: b\n\n",
			[]sse.Event{{Data: "a\n\nb"}}),
		Entry("no space after the colon", "data:no-space\n\n",
			[]sse.Event{{Data: "no-space"}}),
		Entry("only the first space is stripped", "data:  two\n\n",
			[]sse.Event{{Data: " two"}}),
		Entry("comments", ": keep-alive\ndata: hello\n\n: bye\n\n",
			[]sse.Event{{Data: "hello"}}),
		Entry("CRLF line endings", "data: hello\r\n\r\ndata: again\r\n\r\n",
			[]sse.Event{{Data: "hello"}, {Data: "again"}}),
		Entry("bare CR line endings", "data: hello\r\rdata: again\r\r",
			[]sse.Event{{Data: "hello"}, {Data: "again"}}),
		Entry("mixed line endings", "event: text\rdata: a\r\ndata: b\n\r\n",
			[]sse.Event{{Type: "text", Data: "a\nb"}}),
		Entry("trailing CR at end of input", "data: last\r",
			[]sse.Event{{Data: "last"}}),
		Entry("retry and unknown fields", "retry: 3000\nfoo: bar\ndata: hello\n\n",
			[]sse.Event{{Data: "hello"}}),
		Entry("field name without a colon", "data\n\n",
			[]sse.Event{{Data: ""}}),
		Entry("only blank lines", "\n\n\n", nil),
		Entry("unterminated final event", "data: unterminated",
			[]sse.Event{{Data: "unterminated"}}),
		Entry("leading byte order mark", "\ufeffdata: first\n\n",
			[]sse.Event{{Data: "first"}}),
		Entry("id containing NUL is ignored", "id: a\x00b\ndata: x\n\n",
			[]sse.Event{{Data: "x"}}),
		Entry("fields reset between events", "id: 1\nevent: ping\ndata: a\n\ndata: b\n\n",
			[]sse.Event{{ID: "1", Type: "ping", Data: "a"}, {Data: "b"}}),
	)

	It("yields OpenAI chunks then the done sentinel", func() {
		input := "data: {\"id\":\"chatcmpl-1\",\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
			"data: [DONE]\n\n"

		events := readAll(sse.NewReader(strings.NewReader(input)))
		Expect(events).To(HaveLen(2))
		Expect(events[0].IsDone()).To(BeFalse())
		Expect(events[1].IsDone()).To(BeTrue())
	})

	It("reads events split across tiny reads", func() {
		r := sse.NewReader(iotest.OneByteReader(strings.NewReader("event: text\ndata: \"Hi\"\n\n")))
		Expect(readAll(r)).To(Equal([]sse.Event{{Type: "text", Data: `"Hi"`}}))
	})

	It("treats a CRLF split across reads as one line ending", func() {
		r := sse.NewReader(iotest.OneByteReader(strings.NewReader("data: a\r\ndata: b\r\n\r\n")))
		Expect(readAll(r)).To(Equal([]sse.Event{{Data: "a\nb"}}))
	})

	It("returns read errors", func() {
		boom := errors.New("connection reset")
		r := sse.NewReader(iotest.ErrReader(boom))

		_, err := r.Next()
		Expect(err).To(MatchError(boom))
	})

	It("rejects lines longer than the buffer limit", func() {
		r := sse.NewReader(strings.NewReader("data: " + strings.Repeat("x", 2*1024*1024) + "\n\n"))

		_, err := r.Next()
		Expect(err).To(HaveOccurred())
	})
})
