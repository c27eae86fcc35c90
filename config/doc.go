// Copyright 2026 AgentCAD Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package config 提供进程配置管理功能。

# 概述

config 包负责应用配置的加载与校验，按
"默认值 -> YAML 文件 -> 环境变量" 的优先级合并。
工作区目录另有专用环境变量 MULTI_AGENT_WORKSPACE_DIR，
其优先级高于 YAML 配置。

# 核心结构

  - Config: 顶层配置聚合，涵盖 Server、Workspace、Database、
    Cache、Controller、Roles、Log、Telemetry
  - Loader: 配置加载器，支持 Builder 模式链式设置
    文件路径、环境变量前缀与自定义验证器

# 使用示例

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("CAD").
		Load()
*/
package config
