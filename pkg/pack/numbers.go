package pack

import "encoding/json"

// normalizeNumbers turns json.Number values into int or float64 so JSON and
// YAML packs produce the same configuration values.
func normalizeNumbers(p *Pack) {
	for _, wf := range p.Workflows {
		wf.Variables = normalizeMap(wf.Variables)

		for _, step := range wf.Steps {
			step.Conditions = normalize(step.Conditions)
		}

		for _, action := range wf.Actions {
			action.Config = normalizeMap(action.Config)
		}

		for _, trigger := range wf.Triggers {
			trigger.DataFilter = normalize(trigger.DataFilter)
		}
	}

	for i := range p.Seed {
		for j, record := range p.Seed[i].Records {
			p.Seed[i].Records[j] = normalizeMap(record)
		}
	}
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	for k, v := range m {
		m[k] = normalize(v)
	}

	return m
}

func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}

		f, _ := val.Float64()

		return f
	case map[string]any:
		return normalizeMap(val)
	case []any:
		for i := range val {
			val[i] = normalize(val[i])
		}

		return val
	default:
		return v
	}
}
