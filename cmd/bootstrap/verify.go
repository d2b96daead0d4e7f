package bootstrap

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/code-100-precent/LingCollect/pkg/config"
	"github.com/code-100-precent/LingCollect/pkg/conversation"
)

// Check is one line of the setup report
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// VerifySetup checks that envFile exists, the control plane credentials are
// real values, and every provider the configured persona needs has a key.
// All checks run even when an earlier one fails.
func VerifySetup(cfg *config.Config, envFile string) []Check {
	var checks []Check

	if _, err := os.Stat(envFile); err != nil {
		checks = append(checks, Check{Name: envFile, Detail: "file not found, copy .env.example and fill in your credentials"})
	} else {
		checks = append(checks, Check{Name: envFile, OK: true, Detail: "found"})
	}

	required := map[string]string{
		"LIVEKIT_URL":        cfg.LiveKit.URL,
		"LIVEKIT_API_KEY":    cfg.LiveKit.APIKey,
		"LIVEKIT_API_SECRET": cfg.LiveKit.APISecret,
	}
	for _, key := range config.RequiredKeys {
		checks = append(checks, credential(key, required[key]))
	}

	persona, ok := conversation.LookupPersona(cfg.Agent.Persona)
	if !ok {
		checks = append(checks, Check{
			Name:   "AGENT_PERSONA",
			Detail: fmt.Sprintf("unknown persona %q, choose one of %s", cfg.Agent.Persona, strings.Join(conversation.PersonaNames(), ", ")),
		})
		return checks
	}
	checks = append(checks, Check{Name: "AGENT_PERSONA", OK: true, Detail: persona.Name})

	// the responder always runs on OpenAI
	keys := map[string]string{"OPENAI_API_KEY": cfg.Providers.OpenAI.APIKey}
	if persona.Recognizer == conversation.RecognizerDeepgram {
		keys["DEEPGRAM_API_KEY"] = cfg.Providers.Deepgram.APIKey
	}
	if persona.Synthesizer == conversation.SynthesizerCartesia {
		keys["CARTESIA_API_KEY"] = cfg.Providers.Cartesia.APIKey
	}
	for _, key := range []string{"OPENAI_API_KEY", "DEEPGRAM_API_KEY", "CARTESIA_API_KEY"} {
		if v, needed := keys[key]; needed {
			checks = append(checks, credential(key, v))
		}
	}

	if strings.TrimSpace(cfg.LiveKit.SIPTrunkID) == "" {
		// optional, only outbound calls need it
		checks = append(checks, Check{Name: "LIVEKIT_SIP_TRUNK_ID", OK: true, Detail: "not set, outbound dialing will be rejected"})
	} else {
		checks = append(checks, Check{Name: "LIVEKIT_SIP_TRUNK_ID", OK: true, Detail: "set"})
	}
	return checks
}

func credential(key, value string) Check {
	v := strings.TrimSpace(value)
	switch {
	case v == "":
		return Check{Name: key, Detail: "missing"}
	case strings.HasPrefix(v, "your-"):
		return Check{Name: key, Detail: "still the placeholder value"}
	}
	return Check{Name: key, OK: true, Detail: "set"}
}

// Passed reports whether every check succeeded
func Passed(checks []Check) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// PrintChecks writes the report, one line per check
func PrintChecks(w io.Writer, checks []Check) {
	for _, c := range checks {
		mark := "[ok]  "
		if !c.OK {
			mark = "[fail]"
		}
		fmt.Fprintf(w, "%s %s: %s\n", mark, c.Name, c.Detail)
	}
}
