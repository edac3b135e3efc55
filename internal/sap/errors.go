package sap

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind 网关错误类别
type ErrorKind int

const (
	// KindUnreachable 网络不可达（连接失败、DNS失败、登录失败）
	KindUnreachable ErrorKind = iota
	// KindTimeout 请求超时
	KindTimeout
	// KindRemoteRejected Service Layer返回非2xx状态
	KindRemoteRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindTimeout:
		return "timeout"
	case KindRemoteRejected:
		return "remote_rejected"
	default:
		return "unknown"
	}
}

// GatewayError SAP B1 Service Layer调用错误
// 工作流引擎根据Kind决定离线降级还是失败记录
type GatewayError struct {
	Kind   ErrorKind
	Op     string // 如 "login", "query:Get_SO_Series", "post:Invoices"
	Status int    // HTTP状态码，仅RemoteRejected有效
	Body   string // 响应体摘要，仅RemoteRejected有效
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Kind == KindRemoteRejected {
		return fmt.Sprintf("sap %s: remote rejected [%d]: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("sap %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsUnavailable 判断错误是否属于"网关不可用"（触发离线降级的条件）
// RemoteRejected不算不可用 — 远端明确拒绝了请求
func IsUnavailable(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind == KindUnreachable || ge.Kind == KindTimeout
	}
	return false
}

// IsRejected 判断错误是否为远端明确拒绝（非2xx）
func IsRejected(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind == KindRemoteRejected
	}
	return false
}

// transportError 将传输层错误归类为Timeout或Unreachable
func transportError(op string, err error) *GatewayError {
	kind := KindUnreachable
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = KindTimeout
	} else if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &GatewayError{Kind: kind, Op: op, Err: err}
}
