// Copyright 2026 AgentCAD Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试与集成测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - NewTestStore: 每个测试独享的内存 sqlite 存储
  - NewHarness: 完整接线的调度器测试装置
  - Call / CallErr: 断言成功或失败的一次分发
  - CreateLine / CreatePoint / CreateSquare: 几何夹具
*/
package testutil
