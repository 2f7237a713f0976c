package cmd

import (
	"fmt"
	"strconv"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cirrushq/cirrus/internal/observability"
	"github.com/cirrushq/cirrus/pkg/llm"
	"github.com/cirrushq/cirrus/pkg/output"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke [adapter] <model>",
	Short: "Invoke a model through an LLM adapter",
	Long: `Send a prompt to a model and print the completion.

By default the assembled text is written to stdout as it streams. With
--output jsonl every chunk becomes a cirrus.chunk.v1 record, including
the final usage accounting.

Sampling parameters pass through --param (temperature, top_p,
max_tokens, frequency_penalty, presence_penalty, reasoning_effort).

Examples:
  cirrus invoke openai gpt-4o --cred api_key=sk-... --prompt "say hi"
  cirrus invoke gemini -p my-gemini gemini-2.0-flash --prompt "explain DNS" --param temperature=0.2
  cirrus invoke lemonade llama-3.2-3b --prompt "hello" --no-stream`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInvoke,
}

var (
	invokePrompt   string
	invokeSystem   string
	invokeParams   []string
	invokeStop     []string
	invokeNoStream bool
	invokeOutput   string
)

func init() {
	rootCmd.AddCommand(invokeCmd)
	invokeCmd.Flags().StringVar(&invokePrompt, "prompt", "", "User prompt (required)")
	invokeCmd.Flags().StringVar(&invokeSystem, "system", "", "System prompt")
	invokeCmd.Flags().StringArrayVar(&invokeParams, "param", nil, "Sampling parameter key=value (repeatable)")
	invokeCmd.Flags().StringArrayVar(&invokeStop, "stop", nil, "Stop sequence (repeatable)")
	invokeCmd.Flags().BoolVar(&invokeNoStream, "no-stream", false, "Request a single-shot completion instead of streaming")
	invokeCmd.Flags().StringVar(&invokeOutput, "output", "text", "Output format (text|jsonl)")
	_ = invokeCmd.MarkFlagRequired("prompt")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if invokeOutput != "text" && invokeOutput != "jsonl" {
		return exitError(foundry.ExitInvalidArgument, "Invalid --output value", fmt.Errorf("expected text or jsonl"))
	}

	connectorArg := ""
	model := args[0]
	if len(args) == 2 {
		connectorArg = args[0]
		model = args[1]
	}

	name, creds, err := resolveCredentials(connectorArg)
	if err != nil {
		return err
	}
	adapter, err := registry.Adapter(name, creds, observability.CLILogger)
	if err != nil {
		return err
	}

	params, err := parseModelParams(invokeParams)
	if err != nil {
		return err
	}

	var messages []llm.Message
	if invokeSystem != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: invokeSystem})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: invokePrompt})

	stream, err := adapter.Invoke(ctx, llm.InvokeRequest{
		Model:      model,
		Messages:   messages,
		Parameters: params,
		Stop:       invokeStop,
		Stream:     !invokeNoStream,
	})
	if err != nil {
		return err
	}

	if invokeOutput == "jsonl" {
		writer := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.New().String(), name)
		defer func() { _ = writer.Close() }()
		for stream.Next() {
			chunk := stream.Chunk()
			rec := &output.ChunkRecord{
				Index:        chunk.Index,
				Content:      chunk.Delta.Content,
				FinishReason: chunk.FinishReason,
			}
			if chunk.Usage != nil {
				rec.Usage = &output.UsageRecord{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}
			if err := writer.WriteChunk(ctx, rec); err != nil {
				return err
			}
		}
		return stream.Err()
	}

	out := cmd.OutOrStdout()
	for stream.Next() {
		fmt.Fprint(out, stream.Chunk().Delta.Content)
	}
	fmt.Fprintln(out)
	return stream.Err()
}

// parseModelParams converts key=value pairs into typed parameters.
// Numeric values become float64 so adapters see JSON-shaped numbers;
// anything unparsable stays a string (reasoning_effort, etc.).
func parseModelParams(pairs []string) (map[string]any, error) {
	raw, err := parsePairs("param", pairs)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(raw))
	for k, v := range raw {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			params[k] = f
			continue
		}
		params[k] = v
	}
	return params, nil
}
