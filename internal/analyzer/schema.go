package analyzer

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
	"github.com/MikeSquared-Agency/rapport/internal/scoring"
)

// analysisPayload is the wire shape the model fills in. Every field is
// required so the OpenAI strict mode accepts the schema; "none" stands in for
// an absent repair quality.
type analysisPayload struct {
	Deltas                scoring.MetricDeltas `json:"deltas"`
	BehaviorsIdentified   []string             `json:"behaviors_identified"`
	Confidence            float64              `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	RepairAttemptDetected bool                 `json:"repair_attempt_detected"`
	RepairQuality         string               `json:"repair_quality" jsonschema:"enum=none,enum=excellent,enum=good,enum=adequate"`
}

func (p analysisPayload) toAnalysis() scoring.ResponseAnalysis {
	a := scoring.ResponseAnalysis{
		Deltas:                p.Deltas,
		BehaviorsIdentified:   p.BehaviorsIdentified,
		Confidence:            p.Confidence,
		RepairAttemptDetected: p.RepairAttemptDetected,
	}
	if q, ok := emotion.ParseQuality(p.RepairQuality); ok && q.IsRepair() {
		a.RepairQuality = &q
	}
	return a.Normalize()
}

type triggerPayload struct {
	Triggers []triggerItem `json:"triggers"`
}

type triggerItem struct {
	Type     string  `json:"type" jsonschema:"enum=dismissive,enum=neglect,enum=jealousy,enum=boundary,enum=trust"`
	Severity float64 `json:"severity" jsonschema:"minimum=0,maximum=1"`
	Evidence string  `json:"evidence"`
}

var (
	analysisSchema = generateSchema[analysisPayload]()
	triggerSchema  = generateSchema[triggerPayload]()
)

func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	strictify(m)
	return m
}

// strictify marks every object closed with all properties required.
func strictify(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				strictify(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		strictify(items)
	}
}

func schemaText(schema map[string]any) string {
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "{}"
	}
	return strings.TrimSpace(string(b))
}
