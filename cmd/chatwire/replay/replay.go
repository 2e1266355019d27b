// Package replaycmder provides the replay command, which normalizes a
// captured upstream stream offline.
package replaycmder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/chatwire/pkg/chunk"
	"github.com/papercomputeco/chatwire/pkg/cliui"
	"github.com/papercomputeco/chatwire/pkg/llm"
	"github.com/papercomputeco/chatwire/pkg/logger"
	"github.com/papercomputeco/chatwire/pkg/stream"
	"github.com/papercomputeco/chatwire/pkg/transformer"
	"github.com/papercomputeco/chatwire/pkg/utils"
)

// Capture formats.
const (
	FormatAuto   = "auto"
	FormatSSE    = "sse"
	FormatNDJSON = "ndjson"
)

const argsPreviewLen = 120

type replayCommander struct {
	family   string
	format   string
	streamID string
	summary  bool
	noFrames bool
	debug    bool

	// isTerminal reports whether summary output should be rendered.
	isTerminal func() bool
}

const replayLongDesc string = `Normalize a captured stream.

Reads an upstream response body (an OpenAI-compatible SSE capture or Ollama
NDJSON) from a file, or stdin when the file is "-" or omitted, and writes
the chatwire frames the proxy would have sent.

The format and family are detected from the capture unless given.
--summary prints the aggregated completion (text, tool calls, usage) to
stderr after the frames.

Examples:
  chatwire replay capture.sse
  curl -sN ... | chatwire replay --summary
  chatwire replay -f ollama --id chat-1 ollama.ndjson`

const replayShortDesc string = "Normalize a captured SSE or NDJSON stream"

func NewReplayCmd() *cobra.Command {
	return newReplayCmd(&replayCommander{
		isTerminal: func() bool { return term.IsTerminal(int(os.Stderr.Fd())) },
	})
}

func newReplayCmd(cmder *replayCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: replayShortDesc,
		Long:  replayLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			in, closeIn, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			defer closeIn()

			return cmder.run(cmd, in)
		},
	}

	cmd.Flags().StringVarP(&cmder.family, "family", "f", transformer.Auto, "Transformer family (auto, openai, qwen, ollama)")
	cmd.Flags().StringVar(&cmder.format, "format", FormatAuto, "Capture format (auto, sse, ndjson)")
	cmd.Flags().StringVar(&cmder.streamID, "id", "", "Stream id for families whose chunks carry none (default: generated)")
	cmd.Flags().BoolVarP(&cmder.summary, "summary", "s", false, "Print the aggregated completion after the frames")
	cmd.Flags().BoolVar(&cmder.noFrames, "no-frames", false, "Do not print frames (use with --summary)")

	return cmd
}

func openInput(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}

	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("opening capture: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func (c *replayCommander) run(cmd *cobra.Command, in io.Reader) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading capture: %w", err)
	}

	format := c.format
	if format == FormatAuto {
		format = DetectFormat(data)
	}

	family := c.family
	if family == "" || family == transformer.Auto {
		family = transformer.Detect(firstPayload(data, format))
	}

	t, err := transformer.New(family)
	if err != nil {
		return err
	}

	src, err := newSource(data, format)
	if err != nil {
		return err
	}

	opts := []stream.Option{
		stream.WithLogger(logger.New(
			logger.WithDebug(c.debug),
			logger.WithWriter(cmd.ErrOrStderr()),
		)),
	}
	if id := c.streamID; id != "" || family == transformer.Ollama {
		if id == "" {
			id = "chatcmpl-" + uuid.NewString()
		}
		opts = append(opts, stream.WithID(id))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s := stream.New(ctx, src, t, opts...)
	defer s.Close()

	out := io.Discard
	if !c.noFrames {
		out = cmd.OutOrStdout()
	}
	_, copyErr := io.Copy(out, s)

	if c.summary {
		if err := c.printSummary(cmd.ErrOrStderr(), s.Completion()); err != nil {
			return err
		}
	}

	if copyErr != nil {
		return fmt.Errorf("normalizing capture: %w", copyErr)
	}
	return nil
}

// DetectFormat reports whether data is an SSE capture or NDJSON, judged by
// its first non-empty line.
func DetectFormat(data []byte) string {
	line := firstLine(data)
	for _, prefix := range []string{"data:", "event:", "id:", ":"} {
		if strings.HasPrefix(line, prefix) {
			return FormatSSE
		}
	}
	return FormatNDJSON
}

// firstPayload returns the first JSON payload of the capture for family
// detection.
func firstPayload(data []byte, format string) []byte {
	if format != FormatSSE {
		return []byte(firstLine(data))
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		payload, ok := strings.CutPrefix(sc.Text(), "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload != "" && payload != "[DONE]" {
			return []byte(payload)
		}
	}
	return nil
}

func firstLine(data []byte) string {
	for line := range bytes.Lines(data) {
		if trimmed := strings.TrimSpace(string(line)); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func newSource(data []byte, format string) (chunk.Source, error) {
	body := io.NopCloser(bytes.NewReader(data))
	switch format {
	case FormatSSE:
		return chunk.NewSSESource(body), nil
	case FormatNDJSON:
		return chunk.NewNDJSONSource(body), nil
	default:
		return nil, fmt.Errorf("unknown capture format %q (supported: %s, %s, %s)", format, FormatAuto, FormatSSE, FormatNDJSON)
	}
}

func (c *replayCommander) printSummary(w io.Writer, completion llm.Completion) error {
	md := SummaryMarkdown(completion)
	if c.isTerminal != nil && c.isTerminal() {
		rendered, err := cliui.RenderMarkdown(md)
		if err == nil {
			md = rendered
		}
	}

	_, err := fmt.Fprintln(w, md)
	return err
}

// SummaryMarkdown renders the aggregate of a replayed stream.
func SummaryMarkdown(c llm.Completion) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Completion `%s`\n\n", c.ID)
	fmt.Fprintf(&b, "- **Family:** %s\n", c.Family)
	if c.Model != "" {
		fmt.Fprintf(&b, "- **Model:** %s\n", c.Model)
	}
	if c.FinishReason != "" {
		fmt.Fprintf(&b, "- **Finish reason:** %s\n", c.FinishReason)
	}
	fmt.Fprintf(&b, "- **Chunks / frames:** %d / %d\n", c.Chunks, c.Frames)
	if c.Error != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", c.Error)
	}

	if c.Text != "" {
		fmt.Fprintf(&b, "\n### Text\n\n%s\n", c.Text)
	}

	if len(c.ToolCalls) > 0 {
		b.WriteString("\n### Tool calls\n\n| # | id | name | arguments |\n|---|----|------|-----------|\n")
		for _, tc := range c.ToolCalls {
			fmt.Fprintf(&b, "| %d | %s | %s | `%s` |\n",
				tc.Index, tc.ID, tc.Function.Name,
				strings.ReplaceAll(utils.Truncate(tc.Function.Arguments, argsPreviewLen), "|", `\|`))
		}
	}

	if u := c.Usage; u != nil {
		b.WriteString("\n### Usage\n\n| input | output | total |\n|-------|--------|-------|\n")
		fmt.Fprintf(&b, "| %d | %d | %d |\n", u.TotalInputTokens, u.TotalOutputTokens, u.TotalTokens)
	}

	return b.String()
}
