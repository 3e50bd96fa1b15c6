package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/logging"
)

// maxLoggedArgLength caps non-question string arguments in MCP logs.
const maxLoggedArgLength = 200

// credentialKeywords flags argument names whose values never belong in logs.
var credentialKeywords = []string{"password", "secret", "token", "key", "credential"}

// MCPRequestLogger returns middleware that logs MCP JSON-RPC traffic on the
// /mcp endpoint: the tool being called, its sanitized arguments, and whether
// the reply carried a JSON-RPC fault. A nil logger disables it.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// JSON-RPC calls arrive as POST; session management
			// requests have no body worth parsing.
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			body, err := peekBody(r)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			// Not every POST is a tool call; initialize and list
			// requests parse too, just without params.name.
			var call rpcCall
			if err := json.Unmarshal(body, &call); err != nil {
				logger.Debug("Unparseable MCP request body", zap.Error(err))
			}

			logger.Debug("MCP request",
				zap.String("method", call.Method),
				zap.String("tool", call.Params.Name),
				zap.Any("arguments", sanitizeToolArgs(call.Params.Arguments)))

			recorder := &bodyRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
			start := time.Now()

			next.ServeHTTP(recorder, r)

			var reply rpcReply
			if err := json.Unmarshal(recorder.body.Bytes(), &reply); err != nil {
				logger.Debug("Unparseable MCP response body", zap.Error(err))
				return
			}

			if reply.Error != nil {
				logger.Debug("MCP response error",
					zap.String("tool", call.Params.Name),
					zap.Int("error_code", reply.Error.Code),
					zap.String("error_message", reply.Error.Message),
					zap.Duration("duration", time.Since(start)))
				return
			}

			logger.Debug("MCP response success",
				zap.String("tool", call.Params.Name),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// peekBody reads the full request body and puts a replacement reader in
// place so the handler downstream still sees it.
func peekBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// rpcCall is the slice of a JSON-RPC request this middleware cares about.
type rpcCall struct {
	Method string `json:"method"`
	Params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"params"`
}

// rpcReply is the slice of a JSON-RPC response this middleware cares about.
type rpcReply struct {
	Error *rpcFault `json:"error"`
}

type rpcFault struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// bodyRecorder tees the response body so the reply can be inspected after
// the handler runs.
type bodyRecorder struct {
	http.ResponseWriter
	body *bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// sanitizeToolArgs prepares tool arguments for logging. Credential-looking
// keys are redacted outright. The question argument is free-form shop-staff
// text and goes through the same scrubbing as the HTTP query path; other
// strings are only truncated.
func sanitizeToolArgs(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}

	result := make(map[string]interface{}, len(args))
	for k, v := range args {
		if isCredentialKey(k) {
			result[k] = logging.RedactedText
			continue
		}

		str, ok := v.(string)
		if !ok {
			result[k] = v
			continue
		}

		if k == "question" {
			result[k] = logging.SanitizeQuestion(str)
		} else {
			result[k] = logging.TruncateString(str, maxLoggedArgLength)
		}
	}

	return result
}

func isCredentialKey(key string) bool {
	lower := strings.ToLower(key)
	for _, keyword := range credentialKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
