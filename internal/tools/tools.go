package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"

	"genesis/internal/bus"
	"genesis/internal/canvas"
	"genesis/internal/models"
)

const DisplayMediaName = "display_media"

var ErrUnknownTool = errors.New("unknown tool")

var mediaTypes = []string{"youtube", "image", "url", "html"}

var Definitions = []openai.ChatCompletionToolUnionParam{
	openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        canvas.ToolName,
		Description: openai.String("Update the dashboard canvas. Use this to show previews, add content blocks, or clear the canvas."),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]interface{}{
				"action": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"preview", "add_block", "clear"},
					"description": "The action to perform",
				},
				"target": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"main", "left"},
					"description": "Target canvas (default: main)",
				},
				"type": map[string]interface{}{
					"type":        "string",
					"description": "Content type (e.g. 'youtube', 'threejs', 'md', 'manifold')",
				},
				"content": map[string]interface{}{"type": "string", "description": "Text or block content"},
				"url":     map[string]interface{}{"type": "string", "description": "URL for previews or media"},
				"code":    map[string]interface{}{"type": "string", "description": "Code for 3D scenes or solid models"},
				"popup":   map[string]interface{}{"type": "boolean", "description": "Show as a popup"},
			},
			"required": []string{"action"},
		},
	}),
	openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        DisplayMediaName,
		Description: openai.String("Show a video, image, web page or HTML document on the main canvas"),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]interface{}{
				"url":  map[string]interface{}{"type": "string"},
				"type": map[string]interface{}{"type": "string", "enum": mediaTypes},
			},
			"required": []string{"url", "type"},
		},
	}),
}

type result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (r result) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// ExecuteTool runs one tool call. Canvas tools do their work by emitting on
// b; the returned string is the JSON result handed back to the model.
func ExecuteTool(b bus.Bus, name string, argsJSON string) (string, error) {
	switch name {
	case canvas.ToolName:
		return toolCanvasUpdate(b, argsJSON)
	case DisplayMediaName:
		return toolDisplayMedia(b, argsJSON)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

func toolCanvasUpdate(b bus.Bus, argsJSON string) (string, error) {
	envelope, err := canvas.FromToolArgs([]byte(argsJSON))
	if errors.Is(err, canvas.ErrUnknownAction) {
		return result{Error: err.Error()}.String(), nil
	}
	if err != nil {
		return "", err
	}
	b.Emit(models.EventNativeCanvas, envelope)
	return result{Success: true, Message: "Canvas update sent to frontend"}.String(), nil
}

type mediaArgs struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

func toolDisplayMedia(b bus.Bus, argsJSON string) (string, error) {
	var args mediaArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", err
	}
	args.URL = strings.TrimSpace(args.URL)
	if args.URL == "" {
		return result{Error: "url is required"}.String(), nil
	}
	kind := strings.ToLower(strings.TrimSpace(args.Type))
	if kind == "" {
		kind = "url"
	}
	b.Emit(models.EventCanvasSplit, map[string]string{
		"url":      args.URL,
		"type":     kind,
		"targetId": string(canvas.Main),
	})
	return result{Success: true, Message: fmt.Sprintf("Displayed %s on canvas", kind)}.String(), nil
}

// GenerateToolSummary is the one-line description shown in the chat for a
// finished tool call.
func GenerateToolSummary(name string, argsJSON string, res string) string {
	var args map[string]interface{}
	_ = json.Unmarshal([]byte(argsJSON), &args)

	failed := strings.Contains(res, `"success":false`)
	switch name {
	case canvas.ToolName:
		action, _ := args["action"].(string)
		target, _ := args["target"].(string)
		if target == "" {
			target = string(canvas.Main)
		}
		label := fmt.Sprintf("CANVAS %s → %s", strings.ToUpper(action), target)
		if kind, _ := args["type"].(string); kind != "" {
			label += fmt.Sprintf(" (%s)", kind)
		}
		if failed {
			label += " (failed)"
		}
		return label
	case DisplayMediaName:
		kind, _ := args["type"].(string)
		url, _ := args["url"].(string)
		if failed {
			return fmt.Sprintf("MEDIA %s (failed)", kind)
		}
		return fmt.Sprintf("MEDIA %s %s", kind, truncate(url, 60))
	default:
		return fmt.Sprintf("%s (unknown tool)", strings.ToUpper(name))
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
