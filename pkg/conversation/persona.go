package conversation

import (
	"sort"
	"strings"
)

const DefaultPersona = "sarah"

// Provider names a persona can select
const (
	RecognizerWhisper   = "whisper"
	RecognizerDeepgram  = "deepgram"
	SynthesizerOpenAI   = "openai"
	SynthesizerCartesia = "cartesia"
)

// Persona is the data that distinguishes one agent voice from another.
// Switching persona never changes pipeline control flow.
type Persona struct {
	Name         string
	DisplayName  string
	Instructions string
	OpeningLine  string
	Model        string
	Temperature  float32
	Recognizer   string
	Synthesizer  string
	Voice        string
}

const collectionGuidelines = "Your job is to reach customers about an overdue credit card payment " +
	"and resolve it respectfully. Sound like a real person: polite and professional, but persistent.\n\n" +
	"How to run the call:\n" +
	"- Introduce yourself and the bank.\n" +
	"- Confirm you are talking to the account holder before sharing details.\n" +
	"- Explain that the payment of $2,847.32 is 45 days past due.\n" +
	"- Listen, handle denial, anger or promises calmly, and offer options.\n" +
	"- Try to get a concrete payment commitment.\n" +
	"- Finish with clear next steps.\n\n" +
	"Keep each reply short, one or two sentences, because it is spoken on a phone line."

var personas = map[string]Persona{
	"sarah": {
		Name:         "sarah",
		DisplayName:  "Sarah",
		Instructions: "You are Sarah, a debt collection representative at SecureBank. " + collectionGuidelines,
		OpeningLine:  "Hello, may I please speak with the account holder for credit card ending in 4729?",
		Model:        "gpt-4o-mini",
		Temperature:  0.7,
		Recognizer:   RecognizerWhisper,
		Synthesizer:  SynthesizerOpenAI,
		Voice:        "nova",
	},
	"anjali": {
		Name:        "anjali",
		DisplayName: "Anjali",
		Instructions: "You are Anjali, a debt collection representative at SecureBank. " + collectionGuidelines +
			"\n\nOnce the customer confirms who they are, say: \"Hi Ritav, this is Anjali calling from SecureBank " +
			"regarding your credit card account. Do you have a few minutes to speak with me about your account?\"",
		OpeningLine: "Hello, am i speaking to Ritav Das?",
		Model:       "gpt-4o",
		Temperature: 0.5,
		Recognizer:  RecognizerDeepgram,
		Synthesizer: SynthesizerCartesia,
		Voice:       "f6141af3-5f94-418c-80ed-a45d450e7e2e",
	},
}

// LookupPersona finds a built-in persona by name, case-insensitively
func LookupPersona(name string) (Persona, bool) {
	p, ok := personas[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// PersonaNames lists the built-in personas
func PersonaNames() []string {
	names := make([]string, 0, len(personas))
	for name := range personas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithCustomer personalizes the instructions with the callee's name
func (p Persona) WithCustomer(name string) Persona {
	if strings.TrimSpace(name) == "" {
		return p
	}
	p.Instructions += "\n\nThe customer's name is " + name + "."
	return p
}
