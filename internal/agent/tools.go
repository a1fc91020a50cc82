package agent

import (
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/hmochat/internal/conversation"
)

// QuestionArg is the SearchKnowledge argument carrying the search text.
const QuestionArg = "question"

// ExtractProfileTool takes no arguments; the transcript is built from the
// conversation itself.
var ExtractProfileTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        string(conversation.ExtractProfile),
		Description: "Extract the member profile from the conversation once all onboarding details were given.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

// SearchKnowledgeTool searches the HMO services knowledge base.
var SearchKnowledgeTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        string(conversation.SearchKnowledge),
		Description: "Retrieve HMO services information from the knowledge base for a question the conversation does not already answer.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				QuestionArg: map[string]any{
					"type":        "string",
					"description": "The question to search for, phrased as a short focused query.",
				},
			},
			"required": []string{QuestionArg},
		},
	},
}
