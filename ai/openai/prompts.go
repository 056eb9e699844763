package openai

import "fmt"

const contextResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "context": {
      "type": "string"
    }
  },
  "required": ["context"],
  "additionalProperties": false
}`

const contextSystemPrompt = `You situate excerpts of a document within the whole document to improve search retrieval.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- The context is one to three sentences, no more than %d words.
- Name the document's subject and where the excerpt fits within it.
- Mention key entities, terms or section names the excerpt relies on but does not state.
- Do not repeat the excerpt and do not summarize the whole document.
- If the excerpt needs no context, return "context": "".
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Document: "Acme Widget Manual. Chapter 3: Maintenance. ... Replace the filter every 6 months."
Excerpt: "Replace the filter every 6 months."
Output:
{"context":"From the Maintenance chapter of the Acme Widget manual, describing the filter replacement schedule."}`

const contextUserTemplate = `<document>
%s
</document>

<excerpt>
%s
</excerpt>`

// maxContextWords bounds the length of generated context passages.
const maxContextWords = 80

func buildSystemPrompt() string {
	return fmt.Sprintf(contextSystemPrompt, contextResponseSchema, maxContextWords)
}

func buildUserPrompt(document, chunk string) string {
	return fmt.Sprintf(contextUserTemplate, document, chunk)
}
