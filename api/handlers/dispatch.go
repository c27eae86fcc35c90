package handlers

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcad/cad/dispatch"
)

// =============================================================================
// 🧭 Dispatch Handler
// =============================================================================

// DispatchHandler 将 JSON-RPC 请求转交给命令内核
type DispatchHandler struct {
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

// NewDispatchHandler 创建 Dispatch 处理器
func NewDispatchHandler(dispatcher *dispatch.Dispatcher, logger *zap.Logger) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher, logger: logger}
}

// HandleDispatch 处理 POST /v1/dispatch 请求
// 请求体是单个 JSON-RPC 信封；响应按行发出一个 JSON 对象，
// 与 NDJSON 批处理通道保持一致。
// @Summary 分发一个 CAD 操作
// @Tags dispatch
// @Accept json
// @Produce json
// @Router /v1/dispatch [post]
func (h *DispatchHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, dispatch.CodeInvalidRequest, "only POST is supported", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, dispatch.CodeInvalidRequest, "unreadable request body", h.logger)
		return
	}

	req, derr := dispatch.ParseRequest(body)
	var resp *dispatch.Response
	if derr != nil {
		resp = &dispatch.Response{
			JSONRPC: dispatch.JSONRPCVersion,
			Error:   &dispatch.WireError{Code: derr.Code, Message: derr.Message},
		}
	} else {
		resp = h.dispatcher.Dispatch(r.Context(), req)
	}

	status := http.StatusOK
	if resp.Error != nil {
		status = mapErrorCodeToHTTPStatus(resp.Error.Code)
	}
	WriteJSON(w, status, resp)
}
