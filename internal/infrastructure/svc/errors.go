package svc

import "errors"

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")

// ErrNoSessionToken 错误：未配置 venue session token
var ErrNoSessionToken = errors.New("venue session token not configured")
