// Package responsecache maps request fingerprints to stored canonical
// responses. Identical in-flight requests collapse to a single upstream
// call; replicas share entries through the configured cache backend.
package responsecache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/BerriAI/litellm-go/pkg/types"
)

// keyPrefix namespaces response entries; lockPrefix namespaces the
// single-flight build locks.
const (
	keyPrefix  = "litellm:cache"
	lockPrefix = "litellm:lock"
)

// Fingerprint returns the deterministic cache key for a chat request.
// Two requests fingerprint identically iff they agree on model, message
// content, sampling parameters, tools, response format, user opt-in key
// and passthrough extras. Streaming and non-streaming requests never
// share a fingerprint.
func Fingerprint(req *types.ChatRequest) (string, error) {
	var sb strings.Builder

	sb.WriteString("model:")
	sb.WriteString(req.Model)

	messages, err := json.Marshal(req.Messages)
	if err != nil {
		return "", err
	}
	sb.WriteString("|messages:")
	sb.Write(messages)

	if req.Temperature != nil {
		fmt.Fprintf(&sb, "|temp:%.2f", *req.Temperature)
	}
	if req.MaxTokens > 0 {
		fmt.Fprintf(&sb, "|max_tokens:%d", req.MaxTokens)
	}
	if req.TopP != nil {
		fmt.Fprintf(&sb, "|top_p:%.2f", *req.TopP)
	}
	if req.N > 1 {
		fmt.Fprintf(&sb, "|n:%d", req.N)
	}
	if len(req.Tools) > 0 {
		tools, err := json.Marshal(req.Tools)
		if err != nil {
			return "", err
		}
		sb.WriteString("|tools:")
		sb.Write(tools)
	}
	if req.ResponseFormat != nil {
		rf, err := json.Marshal(req.ResponseFormat)
		if err != nil {
			return "", err
		}
		sb.WriteString("|response_format:")
		sb.Write(rf)
	}
	if req.User != "" {
		sb.WriteString("|user:")
		sb.WriteString(req.User)
	}
	if req.Stream {
		sb.WriteString("|stream:true")
	}

	// Extras are keyed deterministically; the cache directive itself is a
	// gateway control and never part of the fingerprint.
	if len(req.Extra) > 0 {
		keys := make([]string, 0, len(req.Extra))
		for k := range req.Extra {
			if k == "cache" {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString("|")
			sb.WriteString(k)
			sb.WriteString(":")
			sb.Write(req.Extra[k])
		}
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return keyPrefix + ":" + hex.EncodeToString(sum[:]), nil
}

// lockKey derives the build-lock key for a fingerprint. Keys produced
// by Fingerprint lose their namespace prefix; caller-supplied keys are
// used as-is under the lock namespace.
func lockKey(fingerprint string) string {
	suffix := strings.TrimPrefix(strings.TrimPrefix(fingerprint, keyPrefix), ":")
	return lockPrefix + ":" + suffix
}
