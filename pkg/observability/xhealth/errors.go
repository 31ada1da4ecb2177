package xhealth

import "errors"

var (
	// ErrEmptyName 表示检查名称为空。
	ErrEmptyName = errors.New("xhealth: empty check name")
	// ErrNilChecker 表示 Checker 为 nil。
	ErrNilChecker = errors.New("xhealth: nil checker")
	// ErrDuplicateCheck 表示同名检查已注册。
	ErrDuplicateCheck = errors.New("xhealth: check already registered")
	// ErrCheckNotFound 表示检查不存在。
	ErrCheckNotFound = errors.New("xhealth: check not found")
	// ErrInvalidInterval 表示调度间隔不合法。
	ErrInvalidInterval = errors.New("xhealth: interval must be positive")
)
