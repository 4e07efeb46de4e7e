package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fin-analyzer/internal/models"
	"fin-analyzer/pkg/llm"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// maxPromptChars bounds the statement text sent to the engine.
const maxPromptChars = 60_000

// SystemInstruction is installed on every provider model.
const SystemInstruction = `You are a meticulous personal finance analyst. You read the text of a bank or card statement and return one JSON object describing the spending in it.

Rules:
- Respond with JSON only. No prose, no markdown.
- Include only real spending. Exclude internal settlements: card repayments, transfers between the user's own accounts, top-ups and refunds of previous payments.
- Every transaction date must be YYYY-MM-DD. If the year is missing, infer it from the statement period.
- amount is a positive number in the statement currency.
- category is exactly one of: Food, Shopping, Transport, Utilities, Travel, Transaction, Other.
- totalSpent is the sum of the amounts you returned.
- summary is two or three sentences describing where the money went.
- advice is two or three concrete suggestions to spend less.`

const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["totalSpent", "transactions", "summary", "advice"],
  "properties": {
    "totalSpent": {"type": "number"},
    "summary": {"type": "string"},
    "advice": {"type": "string"},
    "transactions": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["date", "merchant", "amount", "category"],
        "properties": {
          "date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$", "format": "date"},
          "merchant": {"type": "string"},
          "amount": {"type": "number"},
          "category": {"enum": ["Food", "Shopping", "Transport", "Utilities", "Travel", "Transaction", "Other"]}
        }
      }
    }
  }
}`

// StructuredRecord is the validated shape of an engine response.
type StructuredRecord struct {
	TotalSpent   float64              `json:"totalSpent"`
	Transactions []models.Transaction `json:"transactions"`
	Summary      string               `json:"summary"`
	Advice       string               `json:"advice"`
}

// AnalysisOutput is a parsed record plus provider metadata.
type AnalysisOutput struct {
	Record     *StructuredRecord
	Model      string
	TokenUsage int
}

type LLMService struct {
	completer llm.Completer
	schema    *jsonschema.Schema
	logger    *zap.Logger
}

func NewLLMService(completer llm.Completer, logger *zap.Logger) (*LLMService, error) {
	schema, err := compileRecordSchema()
	if err != nil {
		return nil, err
	}
	return &LLMService{
		completer: completer,
		schema:    schema,
		logger:    logger,
	}, nil
}

func compileRecordSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource("record.json", strings.NewReader(recordSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("record.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Analyze sends statement text to the engine and returns the validated record.
// Failures are *PipelineError values with a MODEL_* code.
func (s *LLMService) Analyze(ctx context.Context, text string) (*AnalysisOutput, error) {
	completion, err := s.completer.Complete(ctx, buildAnalysisPrompt(text))
	if err != nil {
		return nil, newPipelineError(models.ErrorCodeModelCallFailed, "reasoning engine call failed", err)
	}

	record, err := s.ParseRecord(completion.Content)
	if err != nil {
		s.logger.Warn("Rejected reasoning engine response",
			zap.String("model", completion.Model),
			zap.Error(err),
		)
		return nil, err
	}

	return &AnalysisOutput{
		Record:     record,
		Model:      completion.Model,
		TokenUsage: completion.TotalTokens,
	}, nil
}

// ParseRecord strictly validates a raw engine response. A surrounding markdown
// code fence is the only decoration tolerated.
func (s *LLMService) ParseRecord(raw string) (*StructuredRecord, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, newPipelineError(models.ErrorCodeModelEmptyResponse, "reasoning engine returned an empty response", nil)
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, newPipelineError(models.ErrorCodeModelMalformedJSON, "response is not valid JSON", err)
	}
	if err := s.schema.Validate(doc); err != nil {
		return nil, newPipelineError(models.ErrorCodeModelMalformedJSON, "response does not match the record schema", err)
	}

	var record StructuredRecord
	if err := json.Unmarshal([]byte(body), &record); err != nil {
		return nil, newPipelineError(models.ErrorCodeModelMalformedJSON, "response could not be decoded", err)
	}
	if record.Transactions == nil {
		record.Transactions = []models.Transaction{}
	}
	return &record, nil
}

func buildAnalysisPrompt(text string) string {
	text = strings.TrimSpace(sanitizeUTF8(text))
	if len(text) > maxPromptChars {
		text = truncateUTF8(text, maxPromptChars)
	}

	var b strings.Builder
	b.WriteString("Analyze the statement below and return a JSON object with exactly these fields:\n")
	b.WriteString(`{"totalSpent": number, "transactions": [{"date": "YYYY-MM-DD", "merchant": string, "amount": number, "category": string}], "summary": string, "advice": string}`)
	b.WriteString("\n\nStatement:\n")
	b.WriteString(text)
	return b.String()
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the info string, e.g. "json"
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
