package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/factgraph/factgraph/internal/graph"
)

// maxTurns bounds the tool-use loop so a confused model cannot spin forever.
const maxTurns = 12

// Searcher provides web search results.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Profiler provides SEC registrant profiles.
type Profiler interface {
	Profile(ctx context.Context, ticker string) (*CompanyProfile, error)
}

// Stager accepts researched entities.
type Stager interface {
	UpsertPayloads(ctx context.Context, payloads []graph.NodePayload) error
}

// Researcher runs the research agent for one company.
type Researcher struct {
	llm      LLMClient
	searcher Searcher
	profiler Profiler
	stager   Stager
	log      *slog.Logger
}

// Result summarizes one research run. RootKey is the lookup key of the first
// staged OrganizationUnit, the canonical name to sync the subgraph from.
type Result struct {
	Company string
	RootKey string
	Staged  int
	Summary string
}

// NewResearcher wires the agent's clients together. Logger may be nil.
func NewResearcher(llm LLMClient, searcher Searcher, profiler Profiler, stager Stager, log *slog.Logger) *Researcher {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Researcher{
		llm:      llm,
		searcher: searcher,
		profiler: profiler,
		stager:   stager,
		log:      log,
	}
}

// Run drives the tool-use loop until the model stops requesting tools or the
// turn budget runs out. Entities the model stages land in the staging store.
func (r *Researcher) Run(ctx context.Context, company string) (*Result, error) {
	result := &Result{Company: company}
	messages := []Message{
		UserMessage(fmt.Sprintf("Research the company %q and stage what you find.", company)),
	}

	for turn := 0; turn < maxTurns; turn++ {
		completion, err := r.llm.Complete(ctx, systemPrompt, messages, researchTools())
		if err != nil {
			return nil, fmt.Errorf("completing turn %d: %w", turn, err)
		}
		messages = append(messages, Message{Role: "assistant", Content: completion.Content})

		var results []ToolResult
		var texts []string
		for _, part := range completion.Content {
			switch part.Type {
			case "text":
				texts = append(texts, part.Text)
			case "tool_use":
				results = append(results, r.invokeTool(ctx, part, result))
			}
		}

		if completion.StopReason != "tool_use" || len(results) == 0 {
			result.Summary = strings.TrimSpace(strings.Join(texts, "\n"))
			return result, nil
		}
		messages = append(messages, ToolResultMessage(results))
	}

	return nil, fmt.Errorf("research for %q did not finish within %d turns", company, maxTurns)
}

func (r *Researcher) invokeTool(ctx context.Context, part ContentPart, result *Result) ToolResult {
	r.log.Debug("tool call", "tool", part.Name, "id", part.ID)

	content, err := r.dispatch(ctx, part, result)
	if err != nil {
		r.log.Warn("tool call failed", "tool", part.Name, "error", err)
		return ToolResult{ToolUseID: part.ID, Content: err.Error(), IsError: true}
	}
	return ToolResult{ToolUseID: part.ID, Content: content}
}

func (r *Researcher) dispatch(ctx context.Context, part ContentPart, result *Result) (string, error) {
	raw, err := json.Marshal(part.Input)
	if err != nil {
		return "", fmt.Errorf("encoding tool input: %w", err)
	}

	switch part.Name {
	case "web_search":
		var in struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return "", fmt.Errorf("decoding web_search input: %w", err)
		}
		hits, err := r.searcher.Search(ctx, in.Query)
		if err != nil {
			return "", err
		}
		return encodeJSON(hits)

	case "sec_profile":
		var in struct {
			Ticker string `json:"ticker"`
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return "", fmt.Errorf("decoding sec_profile input: %w", err)
		}
		profile, err := r.profiler.Profile(ctx, in.Ticker)
		if err != nil {
			return "", err
		}
		return encodeJSON(profile)

	case "stage_entities":
		var list graph.NodePayloadList
		if err := json.Unmarshal(raw, &list); err != nil {
			return "", fmt.Errorf("decoding stage_entities input: %w", err)
		}
		if err := r.stager.UpsertPayloads(ctx, list.Payloads); err != nil {
			return "", err
		}
		result.Staged += len(list.Payloads)
		if result.RootKey == "" {
			for i := range list.Payloads {
				if list.Payloads[i].NodeType == "OrganizationUnit" {
					result.RootKey = list.Payloads[i].LookupKey
					break
				}
			}
		}
		r.log.Info("staged entities", "count", len(list.Payloads))
		return fmt.Sprintf("staged %d entities", len(list.Payloads)), nil

	default:
		return "", fmt.Errorf("unknown tool %q", part.Name)
	}
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding tool result: %w", err)
	}
	return string(data), nil
}
