// Copyright (c) AgentCAD Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 CAD HTTP API 的请求处理器实现。

# 概述

handlers 包实现服务的 HTTP 端点：JSON-RPC 分发入口、
Agent 注册与消息投递、任务分解，以及健康检查。
所有处理器共享统一的响应信封（api.Response）与
错误码到 HTTP 状态码的映射。

# 核心处理器

  - DispatchHandler: POST /v1/dispatch，把 JSON-RPC 请求
    转交给命令内核并原样返回 JSON-RPC 响应
  - AgentHandler: /v1/agents 及其子资源、/v1/messages、
    /v1/tasks/decompose
  - HealthHandler: /health、/healthz、/ready、/version

# 辅助能力

  - WriteJSON / WriteSuccess / WriteError: 统一响应写出
  - DecodeJSONBody: 限制体积并拒绝未知字段的 JSON 解码
  - ValidateContentType: 宽松的 Content-Type 校验
*/
package handlers
