package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcad/api"
	"github.com/BaSui01/agentcad/cad/controller"
	"github.com/BaSui01/agentcad/cad/dispatch"
	"github.com/BaSui01/agentcad/cad/model"
)

// validAgentID validates agent ID format: alphanumeric start, up to 128 chars.
var validAgentID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// =============================================================================
// Agent Management Handler
// =============================================================================

// AgentHandler exposes the multi-agent controller over HTTP: agent
// lifecycle, inter-agent messaging, learning metrics, and task
// decomposition.
type AgentHandler struct {
	ctrl   *controller.Controller
	logger *zap.Logger
}

// NewAgentHandler 创建 Agent 管理处理器
func NewAgentHandler(ctrl *controller.Controller, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{ctrl: ctrl, logger: logger}
}

// HandleAgents 处理 /v1/agents 集合请求
// GET 列出所有 Agent；POST 注册新 Agent。
func (h *AgentHandler) HandleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, map[string]any{"agents": h.ctrl.ListAgents()})

	case http.MethodPost:
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		var req api.CreateAgentRequest
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
		if !validAgentID.MatchString(req.AgentID) {
			WriteErrorMessage(w, http.StatusBadRequest, dispatch.CodeInvalidParams,
				"agent_id must start alphanumeric and be at most 128 chars", h.logger)
			return
		}
		workspaceID := req.WorkspaceID
		if workspaceID == "" {
			workspaceID = model.MainWorkspaceID
		}
		agent, err := h.ctrl.CreateAgent(r.Context(), req.AgentID, req.Role, workspaceID)
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, dispatch.CodeInvalidParams, err.Error(), h.logger)
			return
		}
		WriteJSON(w, http.StatusCreated, Response{Success: true, Data: agent})

	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, dispatch.CodeInvalidRequest, "method not allowed", h.logger)
	}
}

// HandleAgentByID 处理 /v1/agents/{id} 与其子资源
// GET 返回 Agent 快照；DELETE 终止 Agent；
// GET {id}/metrics 返回学习指标；GET {id}/messages 取走消息队列。
func (h *AgentHandler) HandleAgentByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/agents/")
	parts := strings.SplitN(rest, "/", 2)
	agentID := parts[0]
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		agent, err := h.ctrl.Agent(agentID)
		if err != nil {
			WriteErrorMessage(w, http.StatusNotFound, dispatch.CodeEntityNotFound, err.Error(), h.logger)
			return
		}
		WriteSuccess(w, agent)

	case sub == "" && r.Method == http.MethodDelete:
		if err := h.ctrl.ShutdownAgent(agentID); err != nil {
			WriteErrorMessage(w, http.StatusNotFound, dispatch.CodeEntityNotFound, err.Error(), h.logger)
			return
		}
		WriteSuccess(w, map[string]any{"terminated": agentID})

	case sub == "metrics" && r.Method == http.MethodGet:
		report, err := h.ctrl.AgentMetrics(agentID)
		if err != nil {
			WriteErrorMessage(w, http.StatusNotFound, dispatch.CodeEntityNotFound, err.Error(), h.logger)
			return
		}
		WriteSuccess(w, report)

	case sub == "messages" && r.Method == http.MethodGet:
		markRead := r.URL.Query().Get("mark_read") != "false"
		msgs, err := h.ctrl.GetMessages(agentID, markRead)
		if err != nil {
			WriteErrorMessage(w, http.StatusNotFound, dispatch.CodeEntityNotFound, err.Error(), h.logger)
			return
		}
		WriteSuccess(w, map[string]any{"messages": msgs})

	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, dispatch.CodeInvalidRequest, "method not allowed", h.logger)
	}
}

// HandleMessages 处理 POST /v1/messages：投递一条 Agent 间消息
func (h *AgentHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, dispatch.CodeInvalidRequest, "only POST is supported", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.SendMessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	msg, err := h.ctrl.SendMessage(r.Context(), req.From, req.To, model.MessageType(req.MessageType), req.Content)
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, dispatch.CodeInvalidParams, err.Error(), h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: msg})
}

// HandleDecompose 处理 POST /v1/tasks/decompose：规则化任务分解
// 返回任务列表与可并行的阶段划分。
func (h *AgentHandler) HandleDecompose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, dispatch.CodeInvalidRequest, "only POST is supported", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.DecomposeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Goal == "" {
		WriteErrorMessage(w, http.StatusBadRequest, dispatch.CodeInvalidParams, "goal is required", h.logger)
		return
	}

	tasks := h.ctrl.DecomposeTask(req.Goal, req.Context)
	phases, err := controller.ResolveDependencies(tasks)
	if err != nil {
		WriteErrorMessage(w, http.StatusUnprocessableEntity, dispatch.CodeCircularDependency, err.Error(), h.logger)
		return
	}

	phaseIDs := make([][]string, 0, len(phases))
	for _, phase := range phases {
		ids := make([]string, 0, len(phase))
		for _, t := range phase {
			ids = append(ids, t.TaskID)
		}
		phaseIDs = append(phaseIDs, ids)
	}
	WriteSuccess(w, map[string]any{
		"tasks":  tasks,
		"phases": phaseIDs,
	})
}
