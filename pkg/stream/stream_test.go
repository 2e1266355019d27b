package stream_test

import (
	"context"
	"errors"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatwire/pkg/chunk"
	"github.com/papercomputeco/chatwire/pkg/llm"
	"github.com/papercomputeco/chatwire/pkg/protocol"
	"github.com/papercomputeco/chatwire/pkg/stream"
	"github.com/papercomputeco/chatwire/pkg/streamctx"
	"github.com/papercomputeco/chatwire/pkg/transformer/ollama"
	"github.com/papercomputeco/chatwire/pkg/transformer/openai"
	testutils "github.com/papercomputeco/chatwire/pkg/utils/test"
)

// recorder captures callback invocations in order.
type recorder struct {
	calls     []string
	toolCalls [][]llm.ToolCall
	usage     []llm.Usage
	errs      []error
}

func (r *recorder) callbacks() stream.Callbacks {
	return stream.Callbacks{
		OnStart: func() { r.calls = append(r.calls, "start") },
		OnText:  func(text string) { r.calls = append(r.calls, "text:"+text) },
		OnToolsCalling: func(p stream.ToolsCallingPayload) {
			r.calls = append(r.calls, "tools")
			r.toolCalls = append(r.toolCalls, p.ToolsCalling)
		},
		OnCompletion: func() { r.calls = append(r.calls, "completion") },
		OnUsage: func(u llm.Usage) {
			r.calls = append(r.calls, "usage")
			r.usage = append(r.usage, u)
		},
		OnError: func(err error) {
			r.calls = append(r.calls, "error")
			r.errs = append(r.errs, err)
		},
	}
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

// collect drains s and returns every frame plus the terminal error.
func collect(s *stream.Stream) ([]string, error) {
	var frames []string
	for {
		frame, err := s.Next()
		if err != nil {
			return frames, err
		}
		if frame == nil {
			return frames, nil
		}
		frames = append(frames, string(frame))
	}
}

func newStream(rec *recorder, payloads ...string) (*stream.Stream, *testutils.MockSource) {
	src := testutils.NewMockSource(testutils.MustParseChunks(payloads...)...)
	return stream.New(context.Background(), src, openai.NewQwen(), stream.WithCallbacks(rec.callbacks())), src
}

// failingTransformer errors on every chunk.
type failingTransformer struct{ err error }

func (f failingTransformer) Name() string { return "failing" }
func (f failingTransformer) Transform(*chunk.Chunk, *streamctx.Context) ([]protocol.Event, error) {
	return nil, f.err
}

// panickingTransformer panics on every chunk.
type panickingTransformer struct{}

func (panickingTransformer) Name() string { return "panicking" }
func (panickingTransformer) Transform(*chunk.Chunk, *streamctx.Context) ([]protocol.Event, error) {
	panic("boom")
}

var _ = Describe("Stream", func() {
	var rec *recorder

	BeforeEach(func() {
		rec = &recorder{}
	})

	Describe("text-only stream", func() {
		It("frames text and stop and fires callbacks in order", func() {
			s, src := newStream(rec,
				testutils.TextChunk("1", "Hello"),
				testutils.TextChunk("1", " world!"),
				testutils.StopChunk("1", "stop"),
			)

			frames, err := collect(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(Equal([]string{
				"id: 1\nevent: text\ndata: \"Hello\"\n\n",
				"id: 1\nevent: text\ndata: \" world!\"\n\n",
				"id: 1\nevent: stop\ndata: \"stop\"\n\n",
			}))
			Expect(rec.calls).To(Equal([]string{"start", "text:Hello", "text: world!", "completion"}))
			Expect(src.Closed()).To(BeTrue())

			completion := s.Completion()
			Expect(completion.Text).To(Equal("Hello world!"))
			Expect(completion.FinishReason).To(Equal("stop"))
			Expect(completion.Complete).To(BeTrue())
			Expect(completion.Chunks).To(Equal(3))
			Expect(completion.Frames).To(Equal(3))
			Expect(completion.Family).To(Equal("qwen"))
		})

		It("fires OnStart before the first frame is returned", func() {
			src := testutils.NewMockSource(testutils.MustParseChunks(testutils.TextChunk("1", "x"))...)
			started := false
			s := stream.New(context.Background(), src, openai.New(), stream.WithCallbacks(stream.Callbacks{
				OnStart: func() { started = true },
			}))

			frame, err := s.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(frame).NotTo(BeNil())
			Expect(started).To(BeTrue())
		})

		It("does not invent a completion when the provider never finishes", func() {
			s, _ := newStream(rec, testutils.TextChunk("1", "partial"))

			frames, err := collect(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(HaveLen(1))
			Expect(rec.count("completion")).To(Equal(0))
		})

		It("never fires OnStart for an empty stream", func() {
			s, _ := newStream(rec)

			frames, err := collect(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(BeEmpty())
			Expect(rec.calls).To(BeEmpty())
		})
	})

	Describe("usage chunk", func() {
		It("emits a single usage frame and fires OnUsage", func() {
			s, _ := newStream(rec, testutils.UsageChunk("u", 100, 50))

			frames, err := collect(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(Equal([]string{
				"id: u\nevent: usage\n" +
					`data: {"inputTextTokens":100,"outputTextTokens":50,"totalInputTokens":100,"totalOutputTokens":50,"totalTokens":150}` + "\n\n",
			}))
			Expect(rec.usage).To(Equal([]llm.Usage{{
				InputTextTokens:   100,
				OutputTextTokens:  50,
				TotalInputTokens:  100,
				TotalOutputTokens: 50,
				TotalTokens:       150,
			}}))
			Expect(s.Completion().Usage.TotalTokens).To(Equal(150))
		})
	})

	Describe("parallel tool calls", func() {
		fragments := map[int][]string{
			0: {
				testutils.ToolCallChunk("c", 0, "call_bj", "get_weather", ""),
				testutils.ToolCallChunk("c", 0, "", "", `{"location":`),
				testutils.ToolCallChunk("c", 0, "", "", `"北京"}`),
			},
			1: {
				testutils.ToolCallChunk("c", 1, "call_sh", "get_weather", ""),
				testutils.ToolCallChunk("c", 1, "", "", `{"location":"上`),
				testutils.ToolCallChunk("c", 1, "", "", `海"}`),
			},
			2: {
				testutils.ToolCallChunk("c", 2, "call_nj", "get_weather", ""),
				testutils.ToolCallChunk("c", 2, "", "", `{"location"`),
				testutils.ToolCallChunk("c", 2, "", "", `:"南京"}`),
			},
		}

		// interleave merges per-index fragments following order, which lists
		// the index to take the next fragment from.
		interleave := func(order []int) []string {
			cursor := map[int]int{}
			out := make([]string, 0, len(order))
			for _, i := range order {
				out = append(out, fragments[i][cursor[i]])
				cursor[i]++
			}
			return out
		}

		DescribeTable("reassembles every call by index regardless of interleaving",
			func(order []int) {
				payloads := append(interleave(order), testutils.StopChunk("c", "tool_calls"))
				s, _ := newStream(rec, payloads...)

				frames, err := collect(s)
				Expect(err).NotTo(HaveOccurred())
				Expect(frames).To(HaveLen(len(payloads)))

				final := rec.toolCalls[len(rec.toolCalls)-1]
				Expect(final).To(Equal([]llm.ToolCall{
					{Index: 0, ID: "call_bj", Type: "function", Function: llm.FunctionCall{Name: "get_weather", Arguments: `{"location":"北京"}`}},
					{Index: 1, ID: "call_sh", Type: "function", Function: llm.FunctionCall{Name: "get_weather", Arguments: `{"location":"上海"}`}},
					{Index: 2, ID: "call_nj", Type: "function", Function: llm.FunctionCall{Name: "get_weather", Arguments: `{"location":"南京"}`}},
				}))
				Expect(s.Completion().ToolCalls).To(Equal(final))
				Expect(s.Completion().FinishReason).To(Equal("tool_calls"))
			},
			Entry("sequential", []int{0, 0, 0, 1, 1, 1, 2, 2, 2}),
			Entry("round robin", []int{0, 1, 2, 0, 1, 2, 0, 1, 2}),
			Entry("reverse starts", []int{2, 1, 0, 2, 1, 0, 0, 1, 2}),
			Entry("bursty", []int{1, 1, 0, 2, 0, 2, 1, 2, 0}),
		)

		It("keeps per-chunk frames free of earlier fragments", func() {
			s, _ := newStream(rec, fragments[0]...)

			frames, err := collect(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames[2]).To(Equal("id: c\nevent: tool_calls\n" +
				`data: [{"function":{"arguments":"\"北京\"}","name":null},"id":"call_bj","index":0,"type":"function"}]` + "\n\n"))
		})

		It("hands callbacks snapshots they cannot corrupt", func() {
			src := testutils.NewMockSource(testutils.MustParseChunks(fragments[0]...)...)
			s := stream.New(context.Background(), src, openai.New(), stream.WithCallbacks(stream.Callbacks{
				OnToolsCalling: func(p stream.ToolsCallingPayload) {
					p.ToolsCalling[0].Function.Arguments = "garbage"
					p.ToolsCalling[0].ID = "hijacked"
				},
			}))

			_, err := collect(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Completion().ToolCalls[0].ID).To(Equal("call_bj"))
			Expect(s.Completion().ToolCalls[0].Function.Arguments).To(Equal(`{"location":"北京"}`))
		})
	})

	Describe("vision parts", func() {
		It("emits one text frame per part and one callback each", func() {
			s, _ := newStream(rec,
				`{"id":"v","choices":[{"index":0,"delta":{"content":[{"text":"图中是一只小狗"}]}}]}`,
				`{"id":"v","choices":[{"index":0,"delta":{"content":[{"image":"https://x/y.png"}]}}]}`,
			)

			frames, err := collect(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(Equal([]string{
				"id: v\nevent: text\ndata: \"图中是一只小狗\"\n\n",
				"id: v\nevent: text\ndata: \"![image](https://x/y.png)\"\n\n",
			}))
			Expect(rec.calls).To(Equal([]string{"start", "text:图中是一只小狗", "text:![image](https://x/y.png)"}))
		})
	})

	Describe("no event loss", func() {
		It("yields at least one frame per chunk", func() {
			payloads := []string{
				`{"id":"n","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
				`{"id":"n","choices":[]}`,
				`{"id":"n","choices":[{"index":0,"delta":{"content":null}}]}`,
				testutils.TextChunk("n", ""),
				`{"id":"n","choices":[{"index":0,"delta":{"content":[{"text":"a"},{"text":"b"}]}}]}`,
				testutils.ToolCallChunk("n", 0, "call_1", "f", "{}"),
				testutils.StopChunk("n", "tool_calls"),
				testutils.UsageChunk("n", 1, 1),
			}
			s, _ := newStream(rec, payloads...)

			frames, err := collect(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(frames)).To(BeNumerically(">=", len(payloads)))
			Expect(frames).To(HaveLen(len(payloads) + 1))
		})
	})

	Describe("idempotent framing", func() {
		It("produces byte-identical output across runs", func() {
			payloads := []string{
				testutils.TextChunk("i", "<tag> & 北京"),
				testutils.ToolCallChunk("i", 0, "call_1", "f", `{"a":`),
				testutils.ToolCallChunk("i", 0, "", "", `1}`),
				testutils.StopChunk("i", "tool_calls"),
				testutils.UsageChunk("i", 7, 3),
			}

			first, err := io.ReadAll(stream.New(context.Background(), testutils.NewMockSource(testutils.MustParseChunks(payloads...)...), openai.NewQwen()))
			Expect(err).NotTo(HaveOccurred())
			second, err := io.ReadAll(stream.New(context.Background(), testutils.NewMockSource(testutils.MustParseChunks(payloads...)...), openai.NewQwen()))
			Expect(err).NotTo(HaveOccurred())

			Expect(first).To(Equal(second))
			Expect(string(first)).To(HavePrefix("id: i\nevent: text\ndata: \"<tag> & 北京\"\n\n"))
		})
	})

	Describe("errors", func() {
		It("reports upstream errors after the frames already returned", func() {
			upstream := errors.New("connection reset")
			src := testutils.NewMockSource(testutils.MustParseChunks(testutils.TextChunk("1", "Hel"))...)
			src.Err = upstream
			s := stream.New(context.Background(), src, openai.New(), stream.WithCallbacks(rec.callbacks()))

			frames, err := collect(s)
			Expect(frames).To(Equal([]string{"id: 1\nevent: text\ndata: \"Hel\"\n\n"}))

			var upErr *stream.UpstreamError
			Expect(errors.As(err, &upErr)).To(BeTrue())
			Expect(err).To(MatchError(upstream))
			Expect(rec.calls).To(Equal([]string{"start", "text:Hel", "error"}))
			Expect(src.Closed()).To(BeTrue())

			// The error is sticky and OnError fires once.
			_, err = s.Next()
			Expect(err).To(MatchError(upstream))
			Expect(rec.count("error")).To(Equal(1))

			completion := s.Completion()
			Expect(completion.Complete).To(BeFalse())
			Expect(completion.Text).To(Equal("Hel"))
			Expect(completion.Error).To(ContainSubstring("connection reset"))
		})

		It("terminates on transformer errors", func() {
			src := testutils.NewMockSource(testutils.MustParseChunks(testutils.TextChunk("bad", "x"))...)
			s := stream.New(context.Background(), src, failingTransformer{err: chunk.ErrMalformedChunk}, stream.WithCallbacks(rec.callbacks()))

			_, err := s.Next()
			var tErr *stream.TransformError
			Expect(errors.As(err, &tErr)).To(BeTrue())
			Expect(tErr.ChunkID).To(Equal("bad"))
			Expect(err).To(MatchError(chunk.ErrMalformedChunk))
			Expect(rec.calls).To(Equal([]string{"start", "error"}))
		})

		It("converts transformer panics into errors", func() {
			src := testutils.NewMockSource(testutils.MustParseChunks(testutils.TextChunk("p", "x"))...)
			s := stream.New(context.Background(), src, panickingTransformer{}, stream.WithCallbacks(rec.callbacks()))

			_, err := s.Next()
			Expect(err).To(MatchError(chunk.ErrMalformedChunk))
			Expect(err.Error()).To(ContainSubstring("boom"))
			Expect(rec.count("error")).To(Equal(1))
		})

		It("surfaces malformed upstream payloads through the SSE source", func() {
			body := io.NopCloser(strings.NewReader(
				"data: " + testutils.TextChunk("1", "ok") + "\n\ndata: {not json\n\n",
			))
			s := stream.New(context.Background(), chunk.NewSSESource(body), openai.New(), stream.WithCallbacks(rec.callbacks()))

			frames, err := collect(s)
			Expect(frames).To(HaveLen(1))
			Expect(err).To(MatchError(chunk.ErrMalformedChunk))
			Expect(rec.count("error")).To(Equal(1))
		})
	})

	Describe("cancellation", func() {
		It("stops pulling and suppresses callbacks when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			src := testutils.NewMockSource(testutils.MustParseChunks(
				testutils.TextChunk("1", "a"),
				testutils.TextChunk("1", "b"),
				testutils.TextChunk("1", "c"),
			)...)
			s := stream.New(ctx, src, openai.New(), stream.WithCallbacks(rec.callbacks()))

			_, err := s.Next()
			Expect(err).NotTo(HaveOccurred())
			pulls := src.Pulls()

			cancel()
			_, err = s.Next()
			Expect(err).To(MatchError(context.Canceled))
			Expect(src.Pulls()).To(Equal(pulls))
			Expect(src.Closed()).To(BeTrue())
			Expect(rec.calls).To(Equal([]string{"start", "text:a"}))
		})

		It("unblocks a stalled upstream read on cancel", func() {
			ctx, cancel := context.WithCancel(context.Background())
			src := testutils.NewMockSource()
			src.Block = true
			s := stream.New(ctx, src, openai.New(), stream.WithCallbacks(rec.callbacks()))

			done := make(chan error, 1)
			go func() {
				_, err := s.Next()
				done <- err
			}()

			cancel()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
			Expect(rec.count("error")).To(Equal(0))
		})

		It("discards pending frames on Close", func() {
			s, src := newStream(rec, `{"id":"v","choices":[{"index":0,"delta":{"content":[{"text":"a"},{"text":"b"},{"text":"c"}]}}]}`)

			frame, err := s.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(frame)).To(ContainSubstring(`"a"`))

			Expect(s.Close()).To(Succeed())
			_, err = s.Next()
			Expect(err).To(MatchError(stream.ErrStreamClosed))
			Expect(src.Closed()).To(BeTrue())
			Expect(rec.calls).To(Equal([]string{"start", "text:a"}))
		})

		It("closes the stream when a range loop breaks", func() {
			s, src := newStream(rec, testutils.TextChunk("1", "a"), testutils.TextChunk("1", "b"))

			for frame, err := range s.Frames() {
				Expect(err).NotTo(HaveOccurred())
				Expect(string(frame)).To(ContainSubstring(`"a"`))
				break
			}

			Expect(src.Closed()).To(BeTrue())
			_, err := s.Next()
			Expect(err).To(MatchError(stream.ErrStreamClosed))
		})
	})

	Describe("Read", func() {
		It("serves frames through io.Reader with small buffers", func() {
			s, _ := newStream(rec, testutils.TextChunk("1", "Hello"), testutils.StopChunk("1", "stop"))

			var out strings.Builder
			buf := make([]byte, 5)
			for {
				n, err := s.Read(buf)
				out.Write(buf[:n])
				if err == io.EOF {
					break
				}
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(out.String()).To(Equal("id: 1\nevent: text\ndata: \"Hello\"\n\nid: 1\nevent: stop\ndata: \"stop\"\n\n"))
		})
	})

	Describe("families without chunk ids", func() {
		It("frames Ollama lines with the assigned stream id", func() {
			src := testutils.NewMockSource(testutils.MustParseChunks(
				`{"model":"llama3","message":{"role":"assistant","content":"Hi"},"done":false}`,
				`{"model":"llama3","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":2,"eval_count":1}`,
			)...)
			s := stream.New(context.Background(), src, ollama.New(), stream.WithID("chatcmpl-x"), stream.WithCallbacks(rec.callbacks()))

			frames, err := collect(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(HaveLen(3))
			for _, f := range frames {
				Expect(f).To(HavePrefix("id: chatcmpl-x\n"))
			}
			Expect(rec.calls).To(Equal([]string{"start", "text:Hi", "completion", "usage"}))

			completion := s.Completion()
			Expect(completion.ID).To(Equal("chatcmpl-x"))
			Expect(completion.Model).To(Equal("llama3"))
			Expect(completion.Usage.TotalTokens).To(Equal(3))
		})

		It("carries generated tool call ids into frames and the aggregate", func() {
			src := testutils.NewMockSource(testutils.MustParseChunks(
				`{"model":"qwen2.5","message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"get_weather","arguments":{"city":"x"}}}]},"done":false}`,
				`{"model":"qwen2.5","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`,
			)...)
			var payloads []stream.ToolsCallingPayload
			cb := rec.callbacks()
			cb.OnToolsCalling = func(p stream.ToolsCallingPayload) {
				payloads = append(payloads, p)
			}
			s := stream.New(context.Background(), src, ollama.New(), stream.WithID("chatcmpl-1"), stream.WithCallbacks(cb))

			frames, err := collect(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames[0]).To(MatchRegexp(`"id":"call_[0-9a-f-]{36}"`))

			calls := s.Completion().ToolCalls
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].ID).To(HavePrefix("call_"))
			Expect(calls[0].Function.Name).To(Equal("get_weather"))
			Expect(calls[0].Function.Arguments).To(Equal(`{"city":"x"}`))
			Expect(frames[0]).To(ContainSubstring(calls[0].ID))

			Expect(payloads).To(HaveLen(1))
			Expect(payloads[0].ToolsCalling[0].ID).To(Equal(calls[0].ID))
		})
	})

	It("takes the stream id from the first chunk", func() {
		s, _ := newStream(rec, testutils.TextChunk("chatcmpl-first", "a"), testutils.TextChunk("chatcmpl-second", "b"))
		_, err := collect(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Completion().ID).To(Equal("chatcmpl-first"))
		Expect(s.Completion().Frames).To(Equal(2))
	})
})
