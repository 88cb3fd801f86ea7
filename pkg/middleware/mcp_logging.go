package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/logging"
)

// maxLoggedArgumentLength truncates long non-SQL arguments.
const maxLoggedArgumentLength = 200

// sqlArgumentNames are tool arguments holding query text; they go through SanitizeQuery.
var sqlArgumentNames = map[string]bool{"sql": true, "query": true}

// MCPRequestLogger returns middleware that logs MCP JSON-RPC tool calls with their outcome.
// Query arguments are redacted with logging.SanitizeQuery so literal values never reach the log.
// Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var rpcReq jsonRPCRequest
			if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil {
				logger.Debug("Failed to parse MCP request JSON", zap.Error(err))
			}

			toolName := rpcReq.Params.Name
			logger.Debug("MCP request",
				zap.String("method", rpcReq.Method),
				zap.String("tool", toolName),
				zap.Any("arguments", sanitizeArguments(rpcReq.Params.Arguments)),
			)

			recorder := &mcpResponseRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			var rpcResp jsonRPCResponse
			if err := json.Unmarshal(recorder.body.Bytes(), &rpcResp); err != nil {
				return
			}

			switch {
			case rpcResp.Error != nil:
				logger.Debug("MCP response error",
					zap.String("tool", toolName),
					zap.Int("error_code", rpcResp.Error.Code),
					zap.String("error_message", rpcResp.Error.Message),
					zap.Duration("duration", duration),
				)
			case rpcResp.Result.IsError:
				logger.Debug("MCP tool error result",
					zap.String("tool", toolName),
					zap.Duration("duration", duration),
				)
			default:
				logger.Debug("MCP response success",
					zap.String("tool", toolName),
					zap.Duration("duration", duration),
				)
			}
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// mcpResponseRecorder tees the response body so the outcome can be logged.
type mcpResponseRecorder struct {
	http.ResponseWriter
	body *bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// sanitizeArguments redacts secrets, strips literals from query text and truncates long values.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	sensitiveKeywords := []string{"password", "secret", "token", "key", "credential"}
	result := make(map[string]any, len(args))

	for k, v := range args {
		lowerKey := strings.ToLower(k)

		if str, ok := v.(string); ok && sqlArgumentNames[lowerKey] {
			result[k] = logging.SanitizeQuery(str)
			continue
		}

		isSensitive := false
		for _, keyword := range sensitiveKeywords {
			if strings.Contains(lowerKey, keyword) {
				isSensitive = true
				break
			}
		}
		if isSensitive {
			result[k] = logging.RedactedText
			continue
		}

		if str, ok := v.(string); ok && len(str) > maxLoggedArgumentLength {
			result[k] = str[:maxLoggedArgumentLength] + "..."
		} else {
			result[k] = v
		}
	}

	return result
}
