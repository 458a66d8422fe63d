// Package assembler composes the final system prompt for a chatbot request:
// base prompts, relevance-matched instruction blocks, and data-module blocks,
// plus the behavioral flags the serving layer consumes.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vantigo/vantigo/internal/chatbot"
	"github.com/vantigo/vantigo/internal/instruction"
)

// blockSeparator joins the assembled prompt sections.
const blockSeparator = "\n\n---\n\n"

// UserContext scopes data-module reads to the requesting user. A nil
// UserContext means a service-level read: platform-wide modules still
// resolve, user- and team-scoped modules yield no rows.
type UserContext struct {
	UserID uuid.UUID
	TeamID uuid.UUID
}

// Flags are behavioral capabilities toggled by attached nodes. They carry no
// prompt text; the serving layer acts on them.
type Flags struct {
	Voice       bool `json:"voice"`
	WebSearch   bool `json:"webSearch"`
	Attachments bool `json:"attachments"`
	STTInput    bool `json:"sttInput"`
}

// Block is one relevance-matched instruction rendered into the prompt.
type Block struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
}

// ModuleBlock is one data module's rendered rows.
type ModuleBlock struct {
	ModuleKey string `json:"moduleKey"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Degraded  bool   `json:"degraded"`
}

// Result is the assembled prompt plus its structured pieces, so callers can
// inspect what went into the final string.
type Result struct {
	Prompt            string        `json:"prompt"`
	BasePrompt        string        `json:"basePrompt"`
	InstructionBlocks []Block       `json:"instructionBlocks"`
	DataModules       []ModuleBlock `json:"dataModules"`
	Flags             Flags         `json:"flags"`
}

// ChatbotSource is the slice of the chatbot store the assembler reads.
type ChatbotSource interface {
	GetActive(ctx context.Context, id uuid.UUID) (*chatbot.Chatbot, error)
	ListNodes(ctx context.Context, chatbotID uuid.UUID) ([]chatbot.NodeLink, error)
}

// RelevanceFinder selects instructions relevant to a query.
// *instruction.Matcher implements it.
type RelevanceFinder interface {
	FindRelevant(ctx context.Context, query string, k int, threshold float32) ([]instruction.Match, error)
}

// ModuleFetcher loads one data module's content for a user context.
// Implementations render their rows as a labeled text block.
type ModuleFetcher interface {
	ModuleKey() string
	Fetch(ctx context.Context, uc *UserContext, limit int) (string, error)
}

// Default matching parameters, used when the caller passes zero values.
const (
	DefaultTopK      = 5
	DefaultThreshold = 0.6
)

// Assembler builds prompts. It is read-only: assembly never writes state.
type Assembler struct {
	chatbots  ChatbotSource
	matcher   RelevanceFinder
	fetchers  map[string]ModuleFetcher
	topK      int
	threshold float32
	logger    *slog.Logger
}

// New creates an Assembler. Fetchers are indexed by module key; a data-access
// node without a fetcher degrades to an empty block at assembly time.
// topK and threshold bound the instruction match; zero values take the
// package defaults.
func New(chatbots ChatbotSource, matcher RelevanceFinder, fetchers []ModuleFetcher, topK int, threshold float32, logger *slog.Logger) (*Assembler, error) {
	if chatbots == nil {
		return nil, fmt.Errorf("chatbot source is required")
	}
	if matcher == nil {
		return nil, fmt.Errorf("relevance finder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if topK <= 0 {
		topK = DefaultTopK
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	byKey := make(map[string]ModuleFetcher, len(fetchers))
	for _, f := range fetchers {
		byKey[f.ModuleKey()] = f
	}
	return &Assembler{
		chatbots:  chatbots,
		matcher:   matcher,
		fetchers:  byKey,
		topK:      topK,
		threshold: threshold,
		logger:    logger,
	}, nil
}

// moduleJob is a data-access node resolved against the registry, pending
// fetch.
type moduleJob struct {
	key   string
	name  string
	limit int
}

// Assemble builds the prompt for one request. A missing or inactive chatbot
// is fatal; everything downstream degrades instead of aborting: malformed
// node settings are skipped, failed module fetches contribute an empty
// degraded block, and an unembeddable query yields zero instruction blocks.
func (a *Assembler) Assemble(ctx context.Context, chatbotID uuid.UUID, uc *UserContext, query string) (*Result, error) {
	bot, err := a.chatbots.GetActive(ctx, chatbotID)
	if err != nil {
		return nil, err
	}

	links, err := a.chatbots.ListNodes(ctx, chatbotID)
	if err != nil {
		return nil, fmt.Errorf("loading nodes for %s: %w", chatbotID, err)
	}

	result := &Result{
		BasePrompt: strings.Join(bot.BasePrompts, blockSeparator),
	}

	var jobs []moduleJob
	for _, link := range links {
		def, ok := chatbot.Lookup(link.NodeKey)
		if !ok {
			// Stored link predates a registry change. Skip, same as
			// malformed settings.
			a.logger.Warn("skipping node with no registry entry",
				"chatbot_id", chatbotID, "node_key", link.NodeKey)
			continue
		}
		if link.Settings == nil {
			a.logger.Warn("skipping node with undecodable settings",
				"chatbot_id", chatbotID, "node_key", link.NodeKey)
			continue
		}

		switch def.Type {
		case chatbot.TypeBehavioral:
			a.applyFlag(&result.Flags, link.NodeKey)
		case chatbot.TypeDataAccess:
			limit := 0
			if dm, ok := link.Settings.(*chatbot.DataModuleSettings); ok {
				limit = dm.Limit
			}
			jobs = append(jobs, moduleJob{key: link.NodeKey, name: def.Name, limit: limit})
		}
	}

	result.DataModules = a.fetchModules(ctx, uc, jobs)
	result.InstructionBlocks = a.matchInstructions(ctx, bot, query)
	result.Prompt = a.compose(result)
	return result, nil
}

func (a *Assembler) applyFlag(flags *Flags, nodeKey string) {
	switch nodeKey {
	case chatbot.KeyVoice:
		flags.Voice = true
	case chatbot.KeyWebSearch:
		flags.WebSearch = true
	case chatbot.KeyAttachments:
		flags.Attachments = true
	case chatbot.KeySTTInput:
		flags.STTInput = true
	}
}

// fetchModules runs independent module fetches concurrently and joins before
// composing. Order of the returned blocks follows the node order, not fetch
// completion order.
func (a *Assembler) fetchModules(ctx context.Context, uc *UserContext, jobs []moduleJob) []ModuleBlock {
	if len(jobs) == 0 {
		return nil
	}

	blocks := make([]ModuleBlock, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		g.Go(func() error {
			blocks[i] = a.fetchOne(gctx, uc, job)
			return nil
		})
	}
	// Workers never return errors; failures degrade per block.
	_ = g.Wait()
	return blocks
}

func (a *Assembler) fetchOne(ctx context.Context, uc *UserContext, job moduleJob) ModuleBlock {
	block := ModuleBlock{ModuleKey: job.key, Title: job.name}

	fetcher, ok := a.fetchers[job.key]
	if !ok {
		a.logger.Warn("no fetcher for data module", "module_key", job.key)
		block.Degraded = true
		return block
	}

	content, err := fetcher.Fetch(ctx, uc, job.limit)
	if err != nil {
		a.logger.Error("data module fetch failed, serving degraded block",
			"module_key", job.key, "error", err)
		block.Degraded = true
		return block
	}
	block.Content = content
	return block
}

// matchInstructions runs the relevance matcher. The user query drives the
// match; when absent, the first base prompt stands in so a bare warm-up
// request still surfaces the most on-topic instructions.
func (a *Assembler) matchInstructions(ctx context.Context, bot *chatbot.Chatbot, query string) []Block {
	q := strings.TrimSpace(query)
	if q == "" && len(bot.BasePrompts) > 0 {
		q = bot.BasePrompts[0]
	}
	if q == "" {
		return nil
	}

	matches, err := a.matcher.FindRelevant(ctx, q, a.topK, a.threshold)
	if err != nil {
		a.logger.Error("relevance match failed, assembling without instruction blocks", "error", err)
		return nil
	}

	blocks := make([]Block, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, Block{
			Title:      m.Instruction.Title,
			Content:    m.Instruction.Content,
			Similarity: m.Similarity,
		})
	}
	return blocks
}

// compose concatenates base prompts, instruction blocks, then module blocks.
// Degraded or empty module blocks contribute nothing to the string but stay
// visible in the structured result.
func (a *Assembler) compose(r *Result) string {
	var parts []string
	if r.BasePrompt != "" {
		parts = append(parts, r.BasePrompt)
	}
	for _, b := range r.InstructionBlocks {
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", b.Title, b.Content))
	}
	for _, m := range r.DataModules {
		if m.Content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", m.Title, m.Content))
	}
	return strings.Join(parts, blockSeparator)
}
