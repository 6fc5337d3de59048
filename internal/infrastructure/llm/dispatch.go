package llm

import (
	"net/http"
	"strings"
)

// Family identifies the wire dialect a provider URL speaks.
type Family int

const (
	// FamilyGeneric: unknown hosts, assumed OpenAI-compatible.
	FamilyGeneric Family = iota
	// FamilyOpenAI: api.openai.com and deepseek.com.
	FamilyOpenAI
	// FamilyAnthropic: api.anthropic.com.
	FamilyAnthropic
	// FamilyAnthropicLike: langdock.com and other Anthropic-shaped
	// proxies without the version-header requirement.
	FamilyAnthropicLike
	// FamilyGemini: googleapis.com / generativelanguage hosts.
	FamilyGemini
)

func (f Family) String() string {
	switch f {
	case FamilyOpenAI:
		return "openai"
	case FamilyAnthropic:
		return "anthropic"
	case FamilyAnthropicLike:
		return "anthropic-like"
	case FamilyGemini:
		return "gemini"
	default:
		return "generic"
	}
}

// Streams reports whether the family supports SSE streaming. The rest
// fall back to one blocking call emitted as a single chunk.
func (f Family) Streams() bool {
	return f == FamilyOpenAI || f == FamilyGeneric
}

// DetectFamily classifies a provider URL by substring, first match
// wins.
func DetectFamily(apiURL string) Family {
	u := strings.ToLower(apiURL)
	switch {
	case strings.Contains(u, "langdock.com"):
		return FamilyAnthropicLike
	case strings.Contains(u, "anthropic.com"):
		return FamilyAnthropic
	case strings.Contains(u, "openai.com"), strings.Contains(u, "deepseek.com"):
		return FamilyOpenAI
	case strings.Contains(u, "googleapis.com"), strings.Contains(u, "generativelanguage"):
		return FamilyGemini
	default:
		return FamilyGeneric
	}
}

// Endpoint derives the request URL for a family. OpenAI-shaped hosts
// get /chat/completions appended when the operator left it off; Gemini
// carries the key in the query string; Anthropic-shaped URLs are used
// verbatim.
func Endpoint(family Family, apiURL, apiKey string) string {
	switch family {
	case FamilyOpenAI, FamilyGeneric:
		if strings.Contains(apiURL, "/chat/completions") {
			return apiURL
		}
		return strings.TrimRight(apiURL, "/") + "/chat/completions"
	case FamilyGemini:
		// Never duplicate the key when the operator pasted a URL that
		// already carries it.
		if strings.Contains(apiURL, "key=") {
			return apiURL
		}
		sep := "?"
		if strings.Contains(apiURL, "?") {
			sep = "&"
		}
		return apiURL + sep + "key=" + apiKey
	default:
		return apiURL
	}
}

// applyHeaders sets auth and content headers. Every family sends a
// bearer token except Gemini, whose key is already in the URL;
// Anthropic additionally pins its API version.
func applyHeaders(req *http.Request, family Family, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	if family != FamilyGemini {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if family == FamilyAnthropic {
		req.Header.Set("anthropic-version", "2023-06-01")
	}
}
