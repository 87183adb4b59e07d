package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/ollama/ollama/api"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// OllamaPrompt asks a vision model for normalised boxes of the tracked labels.
const OllamaPrompt = `You are an object detector.

Find every %s in the image.

Return JSON only:
{
  "objects": [
    {"label": "string", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ]
}

RULES
- label must be one of: %s.
- x, y is the top-left corner; all coordinates are normalized to [0,1] (NOT pixels).
- confidence is in [0,1].
- If nothing is found, return {"objects": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

type ollamaObject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		W float64 `json:"w"`
		H float64 `json:"h"`
	} `json:"box"`
}

type ollamaAnswer struct {
	Objects []ollamaObject `json:"objects"`
}

// Ollama asks a local vision LLM to locate objects.
type Ollama struct {
	client  *api.Client
	model   string
	labels  []string
	timeout time.Duration
	maxSide int
}

// NewOllama creates an Ollama backend. Any path on ollamaURL is dropped.
func NewOllama(ollamaURL, model string, labels []string, timeout time.Duration) (*Ollama, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: scheme and host required", ollamaURL)
	}

	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Ollama{
		client:  api.NewClient(baseURL, http.DefaultClient),
		model:   model,
		labels:  labels,
		timeout: timeout,
		maxSide: 1024,
	}, nil
}

// Name implements Backend.
func (o *Ollama) Name() string { return "ollama" }

// Objects implements Backend.
func (o *Ollama) Objects(ctx context.Context, img image.Image) ([]types.Object, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	// Small models choke on full-resolution stills.
	upload := img
	if b := img.Bounds(); b.Dx() > o.maxSide || b.Dy() > o.maxSide {
		upload = imaging.Fit(img, o.maxSide, o.maxSide, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, upload, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	streamFalse := false
	labelList := strings.Join(o.labels, ", ")
	req := &api.ChatRequest{
		Model: o.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: fmt.Sprintf(OllamaPrompt, labelList, labelList),
				Images:  []api.ImageData{api.ImageData(buf.Bytes())},
			},
		},
		Stream: &streamFalse,
		Format: json.RawMessage(`"json"`),
		Options: map[string]any{
			"temperature": 0,
		},
	}

	var content string
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}

	b := img.Bounds()
	return parseOllamaObjects(content, float64(b.Dx()), float64(b.Dy()))
}

// parseOllamaObjects decodes the model answer and scales normalised boxes to
// a w x h image.
func parseOllamaObjects(raw string, w, h float64) ([]types.Object, error) {
	raw = sanitizeModelJSON(raw)

	var answer ollamaAnswer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		// Models sometimes wrap the object in prose.
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON object in model response")
		}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &answer); err != nil {
			return nil, fmt.Errorf("failed to parse model response: %w", err)
		}
	}

	objects := make([]types.Object, 0, len(answer.Objects))
	for _, o := range answer.Objects {
		norm := clampBox(types.BoxFromXYWH(o.Box.X, o.Box.Y, o.Box.W, o.Box.H), 1, 1)
		objects = append(objects, types.Object{
			Label:      strings.ToLower(strings.TrimSpace(o.Label)),
			Confidence: clamp(o.Confidence, 0, 1),
			Box: types.Box{
				X1: norm.X1 * w,
				Y1: norm.Y1 * h,
				X2: norm.X2 * w,
				Y2: norm.Y2 * h,
			},
		})
	}
	return objects, nil
}

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// sanitizeModelJSON strips code fences, comments and trailing commas.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	return strings.TrimSpace(raw)
}
