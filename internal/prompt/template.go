package prompt

import "strings"

// BotPlaceholder marks where the bot name is substituted in a system prompt.
const BotPlaceholder = "{bot}"

// Template is the fixed fragment set of one dialect.
//
// A first turn renders as FirstPrefix + SystemPrompt + FirstInfix + text + EndOfTurn,
// every later turn as TurnPrefix + text + EndOfTurn. ReplySuffix closes a model
// reply inside an engine transcript and Stop lists the sequences that end a reply.
type Template struct {
	FirstPrefix  string
	SystemPrompt string
	FirstInfix   string
	TurnPrefix   string
	EndOfTurn    string
	ReplySuffix  string
	Stop         []string
}

// UsesBotName reports whether the system prompt carries the bot name.
func (t Template) UsesBotName() bool {
	return strings.Contains(t.SystemPrompt, BotPlaceholder)
}

// Preamble returns the system prompt with the bot name substituted.
func (t Template) Preamble(botName string) string {
	if !t.UsesBotName() {
		return t.SystemPrompt
	}
	return strings.ReplaceAll(t.SystemPrompt, BotPlaceholder, botName)
}

const defaultSystemPrompt = "You are a helpful AI assistant. Please keep answers concise and to the point."

// Ref: https://www.llama.com/docs/model-cards-and-prompt-formats/meta-llama-2/
// The "consice" typo and the trailing space are what the deployed models were prompted with.
var llama2Template = Template{
	FirstPrefix:  "[INST] <<SYS>>\n",
	SystemPrompt: "Your name is " + BotPlaceholder + " and you are a helpful AI assistant. Please keep answers consice and to the point. ",
	FirstInfix:   "\n<</SYS>>\n\n",
	TurnPrefix:   "[INST] ",
	EndOfTurn:    " [/INST] ",
	ReplySuffix:  " </s><s>",
	Stop:         []string{"</s>", "[INST]"},
}

// Ref: https://www.llama.com/docs/model-cards-and-prompt-formats/meta-llama-3/
var llama3Template = Template{
	FirstPrefix:  "<|begin_of_text|>\n<|start_header_id|>system<|end_header_id|>\n\n",
	SystemPrompt: defaultSystemPrompt,
	FirstInfix:   "<|eot_id|>\n<|start_header_id|>user<|end_header_id|>\n\n",
	TurnPrefix:   "<|start_header_id|>user<|end_header_id|>\n\n",
	EndOfTurn:    "<|eot_id|>\n<|start_header_id|>assistant<|end_header_id|>\n\n",
	ReplySuffix:  "<|eot_id|>\n",
	Stop:         []string{"<|eot_id|>", "<|end_of_text|>"},
}

var chatMLTemplate = Template{
	FirstPrefix:  "<|im_start|>system\n",
	SystemPrompt: defaultSystemPrompt,
	FirstInfix:   "<|im_end|>\n<|im_start|>user\n",
	TurnPrefix:   "<|im_start|>user\n",
	EndOfTurn:    "<|im_end|>\n<|im_start|>assistant\n",
	ReplySuffix:  "<|im_end|>\n",
	Stop:         []string{"<|im_end|>", "<|endoftext|>"},
}

// Mistral instruct has no system role; the preamble rides in the first [INST] block.
var mistralTemplate = Template{
	FirstPrefix:  "<s>[INST] ",
	SystemPrompt: defaultSystemPrompt,
	FirstInfix:   "\n\n",
	TurnPrefix:   "[INST] ",
	EndOfTurn:    " [/INST]",
	ReplySuffix:  "</s>",
	Stop:         []string{"</s>", "[INST]"},
}

// Gemma has no system role either.
var gemmaTemplate = Template{
	FirstPrefix:  "<bos><start_of_turn>user\n",
	SystemPrompt: defaultSystemPrompt,
	FirstInfix:   "\n\n",
	TurnPrefix:   "<start_of_turn>user\n",
	EndOfTurn:    "<end_of_turn>\n<start_of_turn>model\n",
	ReplySuffix:  "<end_of_turn>\n",
	Stop:         []string{"<end_of_turn>", "<eos>"},
}

var templates = map[Dialect]Template{
	Llama2:  llama2Template,
	Llama3:  llama3Template,
	ChatML:  chatMLTemplate,
	Mistral: mistralTemplate,
	Gemma:   gemmaTemplate,
}

// TemplateFor returns the fragment set of d. Unknown dialects get the
// DefaultDialect template.
func TemplateFor(d Dialect) Template {
	if tpl, ok := templates[d]; ok {
		return cloneTemplate(tpl)
	}
	return cloneTemplate(templates[DefaultDialect])
}

func cloneTemplate(t Template) Template {
	t.Stop = append([]string(nil), t.Stop...)
	return t
}
