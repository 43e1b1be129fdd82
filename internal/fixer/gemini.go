package fixer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"
)

// Gemini is the SDK-driven conversational variant: instead of shelling out
// to an agent binary, it asks a Gemini model for file edits and applies them
// to the working tree itself. The model replies either with the no-op marker
// or with a fenced JSON array of {path, content} edits.
type Gemini struct {
	Dir   string
	Model string
	Logf  func(format string, args ...any)

	client *genai.Client
}

// NewGemini builds the client up front so a missing key or unreachable API
// surfaces at construction, not mid-loop. An empty apiKey falls back to
// Application Default Credentials, same as the gemini CLI.
func NewGemini(ctx context.Context, apiKey, model, dir string, logf func(string, ...any)) (*Gemini, error) {
	cfg := &genai.ClientConfig{}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("fixer: init gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{Dir: dir, Model: model, Logf: logf, client: client}, nil
}

func (a *Gemini) Name() string { return "gemini" }

func (a *Gemini) logf(format string, args ...any) {
	if a.Logf != nil {
		a.Logf(format, args...)
	}
}

// FileEdit is one whole-file replacement proposed by the model.
type FileEdit struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (a *Gemini) Apply(ctx context.Context, logs string) (bool, error) {
	prompt := a.buildPrompt(logs)

	content := genai.NewContentFromText(prompt, genai.RoleUser)
	resp, err := a.client.Models.GenerateContent(ctx, a.Model, []*genai.Content{content}, nil)
	if err != nil {
		// Model/API trouble must not abort the loop; it just means no fix
		// this iteration.
		a.logf("[gemini] generate failed: %v", err)
		return false, nil
	}
	text := replyText(resp)
	if text == "" {
		a.logf("[gemini] empty or blocked response")
		return false, nil
	}

	if strings.Contains(strings.ToUpper(text), noChangeMarker) {
		return false, nil
	}

	edits, err := parseEdits(text)
	if err != nil {
		a.logf("[gemini] could not parse edits from reply: %v", err)
		return false, nil
	}
	if len(edits) == 0 {
		a.logf("[gemini] reply contained no edits")
		return false, nil
	}

	applied := 0
	for _, edit := range edits {
		if err := a.applyEdit(edit); err != nil {
			a.logf("[gemini] skipping edit %q: %v", edit.Path, err)
			continue
		}
		applied++
	}
	a.logf("[gemini] applied %d of %d proposed edit(s)", applied, len(edits))
	return applied > 0, nil
}

func (a *Gemini) buildPrompt(logs string) string {
	return fmt.Sprintf(
		"You are an automated repair agent in a CI autofix loop for a Vercel deployment.\n"+
			"The build for the current commit failed. Diagnose the failure from the logs\n"+
			"below and propose file edits that fix it.\n\n"+
			"Rules:\n"+
			"- Reply with a single fenced ```json block containing an array of\n"+
			"  {\"path\": \"relative/file\", \"content\": \"full new file content\"} objects.\n"+
			"- Paths are relative to the repository root; never use absolute paths.\n"+
			"- Prefer minimal, targeted changes. Do not invent files you have not seen\n"+
			"  referenced in the logs.\n"+
			"- If nothing should change, reply with the single token %s.\n\n"+
			"A copy of the logs is also available at %s in the repository.\n\n"+
			"Vercel build logs:\n\n%s\n",
		noChangeMarker, SnapshotFile, logs)
}

// replyText flattens the first candidate's text parts. A safety-blocked
// candidate carries no content at all, yielding "".
func replyText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return ""
	}
	var reply strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && part.Text != "" {
			reply.WriteString(part.Text)
		}
	}
	return reply.String()
}

// parseEdits extracts the fenced JSON array from the model reply. A reply
// that is bare JSON without fences is accepted too.
func parseEdits(text string) ([]FileEdit, error) {
	payload := text
	if i := strings.Index(text, "```json"); i >= 0 {
		payload = text[i+len("```json"):]
		if j := strings.Index(payload, "```"); j >= 0 {
			payload = payload[:j]
		}
	} else if i := strings.Index(text, "```"); i >= 0 {
		payload = text[i+3:]
		if j := strings.Index(payload, "```"); j >= 0 {
			payload = payload[:j]
		}
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, nil
	}

	var edits []FileEdit
	if err := json.Unmarshal([]byte(payload), &edits); err != nil {
		return nil, err
	}
	return edits, nil
}

func (a *Gemini) applyEdit(edit FileEdit) error {
	rel := filepath.Clean(edit.Path)
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("path escapes repository root")
	}
	dst := filepath.Join(a.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(edit.Content), 0o644)
}
