package tools

import "github.com/sashabaranov/go-openai/jsonschema"

func object(props map[string]jsonschema.Definition, required ...string) jsonschema.Definition {
	if required == nil {
		required = []string{}
	}
	return jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: props,
		Required:   required,
	}
}

func str(description string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.String, Description: description}
}

func num(description string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Number, Description: description}
}

func integer(description string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Integer, Description: description}
}
