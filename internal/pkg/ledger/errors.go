package ledger

import (
	"errors"
	"fmt"
)

// ErrIntegrity 账本完整性校验失败
var ErrIntegrity = errors.New("ledger integrity violated")

// ErrStaleTail 存储中的链尾已被其他写入方推进，条目未写入
var ErrStaleTail = errors.New("ledger tail moved")

// IntegrityError 指出第一个校验失败的条目
type IntegrityError struct {
	Index  int
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity violated at entry %d: %s", e.Index, e.Reason)
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}
