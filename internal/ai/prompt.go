package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = "You are a travel budgeting assistant. Respond with a single JSON object only, without markdown or extra text."

func buildGeneratePlanPrompt(input promptInput, customPrompt string) (string, error) {
	payload, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", err
	}

	requirements := "none"
	if trimmed := strings.TrimSpace(customPrompt); trimmed != "" {
		requirements = trimmed
	}

	prompt := fmt.Sprintf(`Create a travel budget and a day-by-day itinerary as JSON.

Requirements:
- Output JSON only, no code fences, no markdown, no extra text.
- Schema:
{
  "totalEstimatedCost": number,
  "breakdown": [
    {"category": string, "amount": number, "description": string}
  ],
  "itinerary": [
    {"day": integer, "activities": [string], "estimatedCost": number}
  ]
}
- Include at least one breakdown entry for every category in required_categories.
- Every amount and estimatedCost is a non-negative number in USD, not a string.
- totalEstimatedCost equals the sum of all breakdown amounts.
- Provide exactly trip_days itinerary entries, numbered from day 1 to day trip_days.
- Match cost assumptions to travel_style (Budget, Standard or Luxury).
- Traveller requirements: %s

Input:
%s`, requirements, string(payload))

	return prompt, nil
}
