package inference

import (
	"fmt"
	"strings"
)

// Model families share a prompt format.
const (
	FamilyGemma    = "gemma"
	FamilyDeepSeek = "deepseek"
	FamilyPhi      = "phi"
	FamilyPlain    = "plain"
)

const (
	gemmaModelTurn = "<start_of_turn>model"
	phiOutput      = "Output:"
)

// Params are the sampling settings sent with a prompt.
type Params struct {
	MaxNewTokens int
	Temperature  float64
}

var (
	generateParams = Params{MaxNewTokens: 300, Temperature: 0.2}
	explainParams  = Params{MaxNewTokens: 250, Temperature: 0.7}
)

func gemmaChat(content string) string {
	return "<bos><start_of_turn>user\n" + content + "<end_of_turn>\n" + gemmaModelTurn + "\n"
}

func deepseekChat(content string) string {
	return "You are an AI programming assistant, utilizing the DeepSeek Coder model, " +
		"developed by DeepSeek Company, and you only answer questions related to computer science.\n" +
		"### Instruction:\n" + content + "\n### Response:\n"
}

// GeneratePrompt renders a code-generation request for family.
func GeneratePrompt(family, prompt, language string) string {
	switch family {
	case FamilyGemma:
		return gemmaChat(fmt.Sprintf("Write %s code for:\n%s", language, prompt))
	case FamilyDeepSeek:
		return deepseekChat(fmt.Sprintf("You are an expert coding assistant. Write %s code for: %s", language, prompt))
	case FamilyPhi:
		return fmt.Sprintf("Instruct: Write %s code for %s\nOutput:", language, prompt)
	default:
		return fmt.Sprintf("Generate %s code: %s", language, prompt)
	}
}

// ExplainPrompt renders a code-explanation request for family.
func ExplainPrompt(family, code, style string) string {
	content := fmt.Sprintf("Explain this %s code:\n\n%s", style, code)
	switch family {
	case FamilyGemma:
		return gemmaChat(content)
	case FamilyDeepSeek:
		return deepseekChat(content)
	case FamilyPhi:
		return "Instruct: " + content + "\nOutput:"
	default:
		return content
	}
}

// Clean strips whatever the model echoed before its answer.
func Clean(family, text string) string {
	var marker string
	switch family {
	case FamilyGemma:
		marker = gemmaModelTurn
	case FamilyPhi:
		marker = phiOutput
	}
	if marker != "" {
		if i := strings.LastIndex(text, marker); i >= 0 {
			text = text[i+len(marker):]
		}
	}
	return strings.TrimSpace(text)
}
