package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"toolrepro/internal/tool"
)

// WeatherTool is the canned tool bound in every repro run. Its answer is
// fixed so the only variable left is how the endpoint handles the result.
type WeatherTool struct {
	condition   string
	temperature int
}

func NewWeatherTool() *WeatherTool {
	return &WeatherTool{
		condition:   "sunny",
		temperature: 22,
	}
}

func (t *WeatherTool) Name() string {
	return "get_weather"
}

func (t *WeatherTool) Description() string {
	return "Get the current weather for a location"
}

func (t *WeatherTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{
				"type":        "string",
				"description": "City name, e.g. Paris",
			},
		},
		"required": []string{"location"},
	}
}

func (t *WeatherTool) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	var p struct {
		Location string `json:"location"`
	}

	if err := json.Unmarshal(params, &p); err != nil {
		return &tool.Result{
			Success: false,
			Error:   fmt.Sprintf("invalid parameters: %v", err),
		}, nil
	}

	location := strings.TrimSpace(p.Location)
	if location == "" {
		return &tool.Result{
			Success: false,
			Error:   "location cannot be empty",
		}, nil
	}

	return &tool.Result{
		Success: true,
		Output:  fmt.Sprintf("The weather in %s is %s, %d°C", location, t.condition, t.temperature),
		Data: map[string]any{
			"location":    location,
			"condition":   t.condition,
			"temperature": t.temperature,
		},
	}, nil
}
