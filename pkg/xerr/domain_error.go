package xerr

import (
	"errors"
	"fmt"
)

// StorageError 持久化层故障，核心不重试，直接上抛
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError 包装 gorm 等底层错误；err 为 nil 时返回 nil
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// UpstreamError 重试耗尽后的上游模型调用错误
type UpstreamError struct {
	Model string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream model %s: %v", e.Model, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// DeliveryError 传输层投递失败（例如 Markdown 被拒绝）
type DeliveryError struct {
	Op  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery %s: %v", e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// Truncate 截断错误文本（按字符），避免给用户发送超长错误
func Truncate(err error, maxLen int) string {
	if err == nil {
		return ""
	}
	var ue *UpstreamError
	msg := err.Error()
	if errors.As(err, &ue) && ue.Err != nil {
		msg = ue.Err.Error()
	}
	runes := []rune(msg)
	if maxLen > 0 && len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return msg
}
