package webhook

import (
	"fmt"
	"strings"
)

// PayloadAdapter describes how a git provider delivers push events
type PayloadAdapter interface {
	// EventHeader names the header carrying the event type
	EventHeader() string
	// ExpectedEvent is the event type value of a push
	ExpectedEvent() string
	// SignatureHeader names the header carrying the HMAC signature
	SignatureHeader() string
	// ExtractBranch returns the pushed branch or ref, if the payload has one
	ExtractBranch(payload map[string]any) (string, bool)
}

// Webhook provider types
const (
	TypeGitHub    = "github"
	TypeBitbucket = "bitbucket"
	TypeCustom    = "custom"
)

// AdapterFor returns the adapter for a provider type. The custom type has no
// built-in adapter and yields nil.
func AdapterFor(kind string) (PayloadAdapter, error) {
	switch strings.ToLower(kind) {
	case TypeGitHub:
		return GitHub{}, nil
	case TypeBitbucket:
		return Bitbucket{}, nil
	case TypeCustom, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown webhook type: %q", kind)
	}
}

// GitHub reads the top-level "ref" of push events
type GitHub struct{}

func (GitHub) EventHeader() string     { return "X-GitHub-Event" }
func (GitHub) ExpectedEvent() string   { return "push" }
func (GitHub) SignatureHeader() string { return "X-Hub-Signature-256" }

func (GitHub) ExtractBranch(payload map[string]any) (string, bool) {
	ref, ok := payload["ref"].(string)
	if !ok || ref == "" {
		return "", false
	}
	return ref, true
}

// Bitbucket reads the first push.changes[].new.name entry
type Bitbucket struct{}

func (Bitbucket) EventHeader() string     { return "X-Event-Key" }
func (Bitbucket) ExpectedEvent() string   { return "repo:push" }
func (Bitbucket) SignatureHeader() string { return "X-Hub-Signature" }

func (Bitbucket) ExtractBranch(payload map[string]any) (string, bool) {
	push, ok := payload["push"].(map[string]any)
	if !ok {
		return "", false
	}
	changes, ok := push["changes"].([]any)
	if !ok {
		return "", false
	}
	for _, change := range changes {
		c, ok := change.(map[string]any)
		if !ok {
			continue
		}
		newRef, ok := c["new"].(map[string]any)
		if !ok {
			continue
		}
		if name, ok := newRef["name"].(string); ok {
			return name, true
		}
	}
	return "", false
}
