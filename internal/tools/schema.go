package tools

// JSON schema builders for tool parameters.

func object(props map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func str(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func enum[T ~string](desc string, values []T) map[string]interface{} {
	vals := make([]string, len(values))
	for i, v := range values {
		vals[i] = string(v)
	}
	return map[string]interface{}{"type": "string", "description": desc, "enum": vals}
}

func number(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": desc}
}

func integer(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": desc}
}

func strList(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": desc,
		"items":       map[string]interface{}{"type": "string"},
	}
}
