package turn

import "strings"

// DefaultPersona is used when no persona instructions are configured.
const DefaultPersona = `You are Waldo The Wellness Warrior, a friendly voice assistant that shares general health and wellness information.
Speak in short, natural sentences that are easy to follow when heard aloud.
Do not use markdown, lists or special characters in your answers.
Never diagnose conditions or prescribe treatments. Encourage the user to see a healthcare professional when a question calls for it.`

// SafetyNotice is included in every instruction, whether or not context was retrieved.
const SafetyNotice = "Note: I can provide general health information from medical resources, " +
	"but I am not a doctor. This is not medical advice. For diagnosis or treatment, " +
	"please consult a qualified healthcare professional."

// ContextGuidance tells the generator how to use the retrieved context block.
const ContextGuidance = "Use the retrieved context below (if relevant) to help answer the user's question. " +
	"If the context contains a direct answer, reference it. " +
	"If it is unrelated, rely on general knowledge and say when you are uncertain."

// FallbackReply is submitted once when the augmented reply cannot be submitted.
const FallbackReply = "Sorry but I'm having trouble accessing my knowledge base right now. Can you please repeat or rephrase?"

const closingDirective = "Answer succinctly and clearly."

// Instruction is the augmented prompt submitted for a single turn.
type Instruction struct {
	Base     string
	Safety   string
	Guidance string
	// Context is the formatted retrieval block, empty when nothing was retrieved.
	Context  string
	UserText string
}

// BuildInstruction assembles the instruction for userText. contextBlock may be empty.
func BuildInstruction(base string, contextBlock string, userText string) Instruction {
	return Instruction{
		Base:     base,
		Safety:   SafetyNotice,
		Guidance: ContextGuidance,
		Context:  contextBlock,
		UserText: userText,
	}
}

func (i Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(i.Base)
	sb.WriteString("\n\n")
	sb.WriteString(i.Safety)
	sb.WriteString("\n\n")
	sb.WriteString(i.Guidance)
	sb.WriteString("\n\n")
	sb.WriteString(i.Context)
	sb.WriteString("\nUser question: ")
	sb.WriteString(i.UserText)
	sb.WriteString("\n\n")
	sb.WriteString(closingDirective)
	return sb.String()
}
