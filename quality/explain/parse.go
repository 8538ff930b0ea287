package explain

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/dataq/quality/plan"
)

// envelope is the response contract. plan, cleaning_plan and steps are
// accepted as synonyms.
type envelope struct {
	Summary      string          `json:"summary"`
	Plan         json.RawMessage `json:"plan"`
	CleaningPlan json.RawMessage `json:"cleaning_plan"`
	Steps        json.RawMessage `json:"steps"`
}

type yamlEnvelope struct {
	Summary      string      `yaml:"summary"`
	Plan         []yaml.Node `yaml:"plan"`
	CleaningPlan []yaml.Node `yaml:"cleaning_plan"`
	Steps        []yaml.Node `yaml:"steps"`
}

// ParseResponse extracts the summary and the raw plan from a model reply.
// It tries the outermost JSON object first, then YAML with the same keys.
// When neither yields a summary or a plan, the whole reply is the summary and
// the plan is empty. Plan entries that are not objects become entries with an
// unknown operation type, so validation rejects them visibly.
func ParseResponse(text string) (summary string, raws []plan.Raw) {
	body := stripFences(text)

	if s, p, ok := parseJSON(body); ok {
		return s, p
	}
	if s, p, ok := parseYAML(body); ok {
		return s, p
	}
	return strings.TrimSpace(text), nil
}

func parseJSON(body string) (string, []plan.Raw, bool) {
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return "", nil, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(body[start:end+1]), &env); err != nil {
		return "", nil, false
	}

	rawPlan := env.Plan
	for _, alt := range []json.RawMessage{env.CleaningPlan, env.Steps} {
		if isNullJSON(rawPlan) {
			rawPlan = alt
		}
	}

	var raws []plan.Raw
	if !isNullJSON(rawPlan) {
		var items []json.RawMessage
		if err := json.Unmarshal(rawPlan, &items); err != nil {
			raws = []plan.Raw{{OperationType: compact(string(rawPlan))}}
		} else {
			for _, item := range items {
				var r plan.Raw
				if err := json.Unmarshal(item, &r); err != nil {
					r = plan.Raw{OperationType: compact(string(item))}
				}
				raws = append(raws, r)
			}
		}
	}

	summary := strings.TrimSpace(env.Summary)
	if summary == "" && raws == nil {
		return "", nil, false
	}
	return summary, raws, true
}

func parseYAML(body string) (string, []plan.Raw, bool) {
	var env yamlEnvelope
	if err := yaml.Unmarshal([]byte(body), &env); err != nil {
		return "", nil, false
	}

	nodes := env.Plan
	if nodes == nil {
		nodes = env.CleaningPlan
	}
	if nodes == nil {
		nodes = env.Steps
	}

	var raws []plan.Raw
	for i := range nodes {
		var r plan.Raw
		if err := nodes[i].Decode(&r); err != nil {
			r = plan.Raw{OperationType: compact(nodes[i].Value)}
		}
		raws = append(raws, r)
	}

	summary := strings.TrimSpace(env.Summary)
	if summary == "" && raws == nil {
		return "", nil, false
	}
	return summary, raws, true
}

// stripFences returns the body of the first Markdown code fence, or text
func stripFences(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}
	rest := text[open+3:]
	// drop the info string (```json)
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		return rest[:end]
	}
	return rest
}

func isNullJSON(m json.RawMessage) bool {
	s := strings.TrimSpace(string(m))
	return s == "" || s == "null"
}

func compact(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 80 {
		s = strings.ToValidUTF8(s[:80], "") + "..."
	}
	return s
}
