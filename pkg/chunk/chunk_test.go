package chunk_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatwire/pkg/chunk"
	"github.com/papercomputeco/chatwire/pkg/llm"
)

var _ = Describe("Parse", func() {
	It("decodes id, model and choices", func() {
		c, err := chunk.Parse([]byte(`{"id":"chatcmpl-1","model":"qwen-max","choices":[{"index":0,"delta":{"content":"Hello"},"finish_reason":null}]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(c.ID).To(Equal("chatcmpl-1"))
		Expect(c.Model).To(Equal("qwen-max"))
		Expect(c.Choices).To(HaveLen(1))
		Expect(c.Choices[0].FinishReason).To(BeEmpty())
		Expect(c.Choices[0].Delta.Kind()).To(Equal(chunk.DeltaText))
		Expect(c.Choices[0].Delta.Content.Text).To(Equal("Hello"))
	})

	It("keeps the raw payload for passthrough", func() {
		payload := `{"id":"x","choices":[],"system_fingerprint":"fp_1"}`
		c, err := chunk.Parse([]byte(payload))
		Expect(err).NotTo(HaveOccurred())

		out, err := json.Marshal(c)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal(payload))
	})

	It("aggregates usage", func() {
		c, err := chunk.Parse([]byte(`{"id":"u","choices":[],"usage":{"prompt_tokens":100,"completion_tokens":50,"total_tokens":150}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Usage).NotTo(BeNil())
		Expect(c.Usage.Aggregate()).To(Equal(llm.Usage{
			InputTextTokens:   100,
			OutputTextTokens:  50,
			TotalInputTokens:  100,
			TotalOutputTokens: 50,
			TotalTokens:       150,
		}))
	})

	It("rejects invalid JSON", func() {
		_, err := chunk.Parse([]byte(`{"id":`))
		Expect(err).To(MatchError(chunk.ErrMalformedChunk))
	})

	It("rejects non-object payloads", func() {
		_, err := chunk.Parse([]byte(`[1,2,3]`))
		Expect(err).To(MatchError(chunk.ErrMalformedChunk))
	})

	It("surfaces in-band upstream errors", func() {
		_, err := chunk.Parse([]byte(`{"error":{"message":"rate limited","code":429}}`))
		Expect(err).To(MatchError(chunk.ErrUpstreamEvent))
		Expect(err.Error()).To(ContainSubstring("rate limited"))
	})
})

var _ = Describe("Delta", func() {
	parseDelta := func(delta string) *chunk.Delta {
		c, err := chunk.Parse([]byte(`{"id":"d","choices":[{"index":0,"delta":` + delta + `}]}`))
		Expect(err).NotTo(HaveOccurred())
		return c.Choices[0].Delta
	}

	DescribeTable("Kind",
		func(delta string, expected chunk.DeltaKind) {
			Expect(parseDelta(delta).Kind()).To(Equal(expected))
		},
		Entry("tool calls win over content", `{"content":"x","tool_calls":[{"index":0}]}`, chunk.DeltaToolCalls),
		Entry("string content", `{"content":"Hello"}`, chunk.DeltaText),
		Entry("empty string content", `{"content":""}`, chunk.DeltaText),
		Entry("content parts", `{"content":[{"text":"hi"}]}`, chunk.DeltaParts),
		Entry("null content", `{"content":null}`, chunk.DeltaNullContent),
		Entry("empty object", `{}`, chunk.DeltaEmpty),
		Entry("empty tool calls", `{"tool_calls":[]}`, chunk.DeltaUnknown),
		Entry("unrecognized keys", `{"reasoning_content":"thinking"}`, chunk.DeltaUnknown),
		Entry("role only", `{"role":"assistant"}`, chunk.DeltaUnknown),
		Entry("numeric content", `{"content":42}`, chunk.DeltaUnknown),
	)

	It("classifies a missing delta as empty", func() {
		c, err := chunk.Parse([]byte(`{"id":"d","choices":[{"index":0,"finish_reason":"stop"}]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Choices[0].Delta.Kind()).To(Equal(chunk.DeltaEmpty))
		Expect(c.Choices[0].FinishReason).To(Equal("stop"))
	})

	It("distinguishes absent fragment fields from zero values", func() {
		d := parseDelta(`{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_weather","arguments":""}},{"function":{"arguments":"{"}}]}`)
		Expect(d.ToolCalls).To(HaveLen(2))

		first := d.ToolCalls[0]
		Expect(*first.Index).To(Equal(0))
		Expect(first.ID).To(Equal("call_1"))
		Expect(*first.Function.Name).To(Equal("get_weather"))
		Expect(*first.Function.Arguments).To(Equal(""))

		second := d.ToolCalls[1]
		Expect(second.Index).To(BeNil())
		Expect(second.Function.Name).To(BeNil())
		Expect(*second.Function.Arguments).To(Equal("{"))
	})

	It("decodes image parts in both styles", func() {
		d := parseDelta(`{"content":[{"image":"https://x/y.png"},{"type":"image_url","image_url":{"url":"https://x/z.png"}},{"type":"image_url","image_url":"https://x/w.png"}]}`)
		Expect(d.Content.Parts).To(HaveLen(3))
		Expect(d.Content.Parts[0].Image).To(Equal("https://x/y.png"))
		Expect(d.Content.Parts[1].ImageURL.URL).To(Equal("https://x/z.png"))
		Expect(d.Content.Parts[2].ImageURL.URL).To(Equal("https://x/w.png"))
	})

	It("marshals back to the original delta", func() {
		d := parseDelta(`{"content":null,"x_vendor":1}`)
		out, err := json.Marshal(d)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal(`{"content":null,"x_vendor":1}`))
	})
})
