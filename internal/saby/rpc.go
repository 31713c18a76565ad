package saby

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/crm-integrations/saby-connector/internal/config"
	"github.com/crm-integrations/saby-connector/internal/platform/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// The CRM's protocol version constant.  Part of every envelope.
const protocolVersion = 6

// RpcClient serializes method calls into the CRM's JSON-RPC dialect and
// unwraps the result/error members of the reply.  It is stateless with respect
// to any single call; the only shared state is the injected token manager.
type RpcClient struct {
	apiUrl     string
	httpClient *http.Client
	tokens     *TokenManager
}

func NewRpcClient(cfg *config.Config, tokens *TokenManager) *RpcClient {
	return &RpcClient{
		apiUrl:     cfg.SabyApiUrl,
		httpClient: &http.Client{Timeout: cfg.SabyRequestTimeout},
		tokens:     tokens,
	}
}

type rpcEnvelope struct {
	JsonRpc  string      `json:"jsonrpc"`
	Method   string      `json:"method"`
	Params   interface{} `json:"params"`
	Protocol int         `json:"protocol"`
	Id       int         `json:"id"`
}

type rpcErrorBody struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Call performs a single RPC round trip.  The request id need not be unique -
// the CRM does not enforce that - but callers should supply one for
// traceability.
func (c *RpcClient) Call(ctx context.Context, method string, params interface{}, requestId int) (map[string]interface{}, error) {

	token, err := c.tokens.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	envelope := rpcEnvelope{
		JsonRpc:  "2.0",
		Method:   method,
		Params:   params,
		Protocol: protocolVersion,
		Id:       requestId,
	}

	requestBody, err := json.Marshal(envelope)
	if err != nil {
		return nil, &TransportError{Message: "unable to serialize request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiUrl, bytes.NewReader(requestBody))
	if err != nil {
		return nil, &TransportError{Message: "unable to build request", Err: err}
	}

	headers, err := c.tokens.AuthHeaders(token)
	if err != nil {
		return nil, err
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	logger.Log.WithFields(logrus.Fields{
		"method":     method,
		"request_id": requestId}).Debug("Making API request")

	metrics.rpcCallCounter.With(prometheus.Labels{"method": method}).Inc()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.rpcErrorCounter.With(prometheus.Labels{"method": method}).Inc()
		logger.Log.WithFields(logrus.Fields{"error": err, "method": method}).Error("Request error")
		return nil, &TransportError{Message: "request error", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.rpcErrorCounter.With(prometheus.Labels{"method": method}).Inc()
		logger.Log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"method": method}).Error("API request failed")
		return nil, &TransportError{Message: "API request failed", StatusCode: resp.StatusCode}
	}

	var reply struct {
		Result map[string]interface{} `json:"result"`
		Error  *rpcErrorBody          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		metrics.rpcErrorCounter.With(prometheus.Labels{"method": method}).Inc()
		return nil, &TransportError{Message: "invalid JSON response", Err: err}
	}

	if reply.Error != nil {
		metrics.rpcErrorCounter.With(prometheus.Labels{"method": method}).Inc()
		logger.Log.WithFields(logrus.Fields{
			"code":   reply.Error.Code,
			"method": method,
			"error":  reply.Error.Message}).Error("API returned error")
		return nil, &RpcError{
			Code:    reply.Error.Code,
			Message: reply.Error.Message,
			Data:    reply.Error.Data,
		}
	}

	logger.Log.WithFields(logrus.Fields{"method": method}).Debug("API request successful")

	if reply.Result == nil {
		return map[string]interface{}{}, nil
	}

	return reply.Result, nil
}
