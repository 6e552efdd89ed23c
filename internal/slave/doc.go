// Package slave 实现 hive 的 worker 节点。
// worker 连接 host（直接配置地址或通过 UDP 发现），循环拉取任务、
// 调用计算策略执行并上报结果，同时定期发送心跳。
package slave
