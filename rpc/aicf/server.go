package aicf

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

const jsonRPCVersion = "2.0"
const maxRequestBytes = 1 << 20

// rpcRequest / rpcResponse are the standard JSON-RPC 2.0 envelope.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// JWTConfig gates privileged methods (claimPayout and submitProof, which
// move a provider's money) behind a bearer token.
type JWTConfig struct {
	Secret []byte
	// Methods lists JSON-RPC methods that require a valid bearer token.
	// Discovery/read methods are left open.
	Methods map[string]struct{}
}

func (c JWTConfig) enabled() bool { return len(c.Secret) > 0 }

func (c JWTConfig) requires(method string) bool {
	if !c.enabled() {
		return false
	}
	_, ok := c.Methods[method]
	return ok
}

func (c JWTConfig) verify(r *http.Request) error {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return errMissingToken
	}
	_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedSigningMethod
		}
		return c.Secret, nil
	})
	return err
}

// Server is the HTTP JSON-RPC 2.0 front door for the Service methods.
type Server struct {
	svc     *Service
	limiter *rate.Limiter
	hub     *Hub
	jwt     JWTConfig
}

// NewServer constructs a Server with a token-bucket rate limiter and an
// event Hub for WS fan-out. If jwtCfg carries no secret, auth is disabled
// and every method is open, the dev-mode default.
func NewServer(svc *Service, hub *Hub, jwtCfg JWTConfig) *Server {
	if jwtCfg.enabled() && jwtCfg.Methods == nil {
		jwtCfg.Methods = map[string]struct{}{"aicf.claimPayout": {}, "aicf.submitProof": {}}
	}
	return &Server{svc: svc, limiter: rate.NewLimiter(rate.Limit(200), 200), hub: hub, jwt: jwtCfg}
}

// Router builds the chi mux exposing POST /rpc and GET /ws.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/rpc", s.handleRPC)
	r.Get("/ws", s.hub.ServeWS)
	return r
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeError(w, nil, codeRateLimited, "rate limited", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, codeParseError, "parse error", nil)
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		writeError(w, req.ID, codeInvalidRequest, "invalid jsonrpc version", nil)
		return
	}
	if s.jwt.requires(req.Method) {
		if err := s.jwt.verify(r); err != nil {
			writeError(w, req.ID, codeUnauthorized, "unauthorized", nil)
			return
		}
	}

	ctx := r.Context()
	switch req.Method {
	case "aicf.listProviders":
		dispatch(w, req, func(p ListProvidersParams) (interface{}, error) { return s.svc.ListProviders(ctx, p) })
	case "aicf.getProvider":
		dispatch(w, req, func(p GetProviderParams) (interface{}, error) { return s.svc.GetProvider(ctx, p) })
	case "aicf.listJobs":
		dispatch(w, req, func(p ListJobsParams) (interface{}, error) { return s.svc.ListJobs(ctx, p) })
	case "aicf.getJob":
		dispatch(w, req, func(p GetJobParams) (interface{}, error) { return s.svc.GetJob(ctx, p) })
	case "aicf.getBalance":
		dispatch(w, req, func(p GetBalanceParams) (interface{}, error) { return s.svc.GetBalance(ctx, p) })
	case "aicf.claimPayout":
		dispatch(w, req, func(p ClaimPayoutParams) (interface{}, error) { return s.svc.ClaimPayout(ctx, p) })
	case "aicf.submitProof":
		dispatch(w, req, func(p SubmitProofParams) (interface{}, error) { return s.svc.SubmitProof(ctx, p) })
	default:
		writeError(w, req.ID, codeMethodNotFound, "method not found", nil)
	}
}

// dispatch decodes req.Params into P, invokes fn, and writes the JSON-RPC
// response — an explicit, compile-time-checked per-method adapter rather
// than a reflective method table.
func dispatch[P any](w http.ResponseWriter, req rpcRequest, fn func(P) (interface{}, error)) {
	var params P
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeError(w, req.ID, codeInvalidParams, "invalid params", nil)
			return
		}
	}
	result, err := fn(params)
	if err != nil {
		if me, ok := err.(*ModuleError); ok {
			writeError(w, req.ID, me.Code, me.Message, me.Data)
			return
		}
		writeError(w, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, result)
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &rpcError{Code: code, Message: message, Data: data}})
}
